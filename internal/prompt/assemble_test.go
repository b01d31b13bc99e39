package prompt

import (
	"errors"
	"strings"
	"testing"

	"github.com/aruniapsara/DrapeStudio/internal/domain"
)

func TestLoadTemplateV01(t *testing.T) {
	tpl, err := LoadTemplate("v0.1")
	if err != nil {
		t.Fatalf("LoadTemplate: %v", err)
	}
	if tpl.Version != "v0.1" {
		t.Errorf("Version = %q, want v0.1", tpl.Version)
	}
	if tpl.Quality == "" || tpl.Output == "" || tpl.Negative == "" {
		t.Error("quality/output/negative blocks must not be empty")
	}

	environments := []string{
		"studio_white", "studio_beige", "outdoor_street", "outdoor_park",
		"outdoor_beach", "indoor_cafe", "indoor_home",
	}
	for _, env := range environments {
		if _, ok := tpl.Environments[env]; !ok {
			t.Errorf("missing environment preset %q", env)
		}
		if _, ok := tpl.Lighting[env]; !ok {
			t.Errorf("missing lighting preset for environment %q", env)
		}
	}
	for _, pose := range []string{"front_standing", "walking", "three_quarter", "seated"} {
		if _, ok := tpl.Poses[pose]; !ok {
			t.Errorf("missing pose preset %q", pose)
		}
	}
	for _, fr := range []string{"full_body", "three_quarter", "waist_up"} {
		if _, ok := tpl.Framing[fr]; !ok {
			t.Errorf("missing framing preset %q", fr)
		}
	}
}

func TestLoadTemplateUnknownVersion(t *testing.T) {
	if _, err := LoadTemplate("v9.9"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func testParams() (map[string]any, map[string]any) {
	model := map[string]any{
		"age_range":           "25-34",
		"gender_presentation": "feminine",
		"skin_tone":           "4",
		"body_type":           "curvy",
	}
	scene := map[string]any{
		"environment": "studio_white",
		"pose_preset": "front_standing",
		"framing":     "full_body",
	}
	return model, scene
}

func TestAssembleDeterministic(t *testing.T) {
	model, scene := testParams()
	refs := []string{"local://uploads/s/front.jpg"}

	first, err := Assemble("v0.1", model, scene, refs)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := Assemble("v0.1", model, scene, refs)
		if err != nil {
			t.Fatalf("Assemble: %v", err)
		}
		if again != first {
			t.Fatal("same inputs must produce byte-identical prompts")
		}
	}
}

func TestAssembleContent(t *testing.T) {
	model, scene := testParams()
	out, err := Assemble("v0.1", model, scene, []string{"local://uploads/s/a.jpg"})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	for _, want := range []string{
		"A feminine model, age 25-34, Fitzpatrick skin tone 4, curvy body type",
		"MODEL:", "POSE:", "FRAMING:", "ENVIRONMENT:", "LIGHTING:",
		"QUALITY REQUIREMENTS:", "NEGATIVE (avoid these):",
		"seamless white studio backdrop",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestAssembleAppliesSceneDefaults(t *testing.T) {
	model, _ := testParams()
	out, err := Assemble("v0.1", model, map[string]any{}, []string{"ref"})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !strings.Contains(out, "seamless white studio backdrop") {
		t.Error("missing default environment description")
	}
	if !strings.Contains(out, "facing the camera") {
		t.Error("missing default pose description")
	}
}

func TestAssembleRejectsUnknownPreset(t *testing.T) {
	model, scene := testParams()
	scene["environment"] = "moon_base"
	_, err := Assemble("v0.1", model, scene, []string{"ref"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestAssembleRejectsEmptyRefs(t *testing.T) {
	model, scene := testParams()
	if _, err := Assemble("v0.1", model, scene, nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestAssembleHairAndEthnicity(t *testing.T) {
	model, scene := testParams()
	model["ethnicity"] = "sri_lankan"
	model["hair_style"] = "ponytail"
	model["hair_color"] = "black"
	model["additional_description"] = "wears silver earrings"

	out, err := Assemble("v0.1", model, scene, []string{"ref"})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	for _, want := range []string{
		"Sri Lankan", "black hair, hair in a simple ponytail",
		"Additional details: wears silver earrings",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
