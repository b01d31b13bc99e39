package prompt

import (
	"fmt"
	"strings"

	"github.com/aruniapsara/DrapeStudio/internal/domain"
)

// Documented defaults applied when a parameter is absent. A parameter that is
// present but names a preset the template does not define is rejected instead
// of being silently echoed into the prompt.
const (
	defaultEnvironment = "studio_white"
	defaultPose        = "front_standing"
	defaultFraming     = "full_body"
	defaultAgeRange    = "25-34"
	defaultGender      = "feminine"
	defaultSkinTone    = "4"
	defaultBodyType    = "average"
)

// Assemble builds the full prompt text from the versioned template and the
// stored request parameters. It is deterministic: identical inputs always
// produce identical output.
func Assemble(version string, modelParams, sceneParams map[string]any, garmentRefs []string) (string, error) {
	if len(garmentRefs) == 0 {
		return "", fmt.Errorf("%w: at least one garment reference is required", domain.ErrValidation)
	}

	t, err := LoadTemplate(version)
	if err != nil {
		return "", err
	}

	environment := stringParam(sceneParams, "environment", defaultEnvironment)
	pose := stringParam(sceneParams, "pose_preset", defaultPose)
	framing := stringParam(sceneParams, "framing", defaultFraming)

	envDesc, err := lookupPreset(t.Environments, "environment", environment)
	if err != nil {
		return "", err
	}
	poseDesc, err := lookupPreset(t.Poses, "pose_preset", pose)
	if err != nil {
		return "", err
	}
	framingDesc, err := lookupPreset(t.Framing, "framing", framing)
	if err != nil {
		return "", err
	}
	// Lighting follows the environment preset; environments without a
	// lighting entry simply omit the line content.
	lightingDesc := t.Lighting[environment]

	modelDesc, err := buildModelDescription(t, modelParams)
	if err != nil {
		return "", err
	}

	prompt := fmt.Sprintf(`Generate a photorealistic catalogue image of a model wearing the garment shown in the reference image(s).

MODEL: %s

POSE: %s

FRAMING: %s

ENVIRONMENT: %s

LIGHTING: %s

QUALITY REQUIREMENTS:
%s

OUTPUT REQUIREMENTS:
%s

NEGATIVE (avoid these):
%s`,
		modelDesc,
		poseDesc,
		framingDesc,
		envDesc,
		lightingDesc,
		strings.TrimSpace(t.Quality),
		strings.TrimSpace(t.Output),
		strings.TrimSpace(t.Negative),
	)

	return prompt, nil
}

func buildModelDescription(t *Template, modelParams map[string]any) (string, error) {
	ageRange := stringParam(modelParams, "age_range", defaultAgeRange)
	gender := stringParam(modelParams, "gender_presentation", defaultGender)
	skinTone := stringParam(modelParams, "skin_tone", defaultSkinTone)
	bodyType := stringParam(modelParams, "body_type", defaultBodyType)

	desc := fmt.Sprintf("A %s model, age %s, Fitzpatrick skin tone %s, %s body type",
		gender, ageRange, skinTone, bodyType)

	if ethnicity := stringParam(modelParams, "ethnicity", ""); ethnicity != "" {
		ethnicityDesc, err := lookupPreset(t.Ethnicities, "ethnicity", ethnicity)
		if err != nil {
			return "", err
		}
		desc += ", " + ethnicityDesc
	}

	hairStyleDesc := ""
	if hairStyle := stringParam(modelParams, "hair_style", ""); hairStyle != "" {
		d, err := lookupPreset(t.HairStyles, "hair_style", hairStyle)
		if err != nil {
			return "", err
		}
		hairStyleDesc = d
	}
	hairColorDesc := ""
	if hairColor := stringParam(modelParams, "hair_color", ""); hairColor != "" {
		d, err := lookupPreset(t.HairColors, "hair_color", hairColor)
		if err != nil {
			return "", err
		}
		hairColorDesc = d
	}
	switch {
	case hairColorDesc != "" && hairStyleDesc != "":
		desc += ", " + hairColorDesc + ", " + hairStyleDesc
	case hairStyleDesc != "":
		desc += ", " + hairStyleDesc
	case hairColorDesc != "":
		desc += ", " + hairColorDesc
	}

	if extra := strings.TrimSpace(stringParam(modelParams, "additional_description", "")); extra != "" {
		desc += ". Additional details: " + extra
	}

	return desc, nil
}

func lookupPreset(presets map[string]string, field, key string) (string, error) {
	desc, ok := presets[key]
	if !ok {
		return "", fmt.Errorf("%w: unknown %s preset %q", domain.ErrValidation, field, key)
	}
	return desc, nil
}

func stringParam(params map[string]any, key, fallback string) string {
	if params == nil {
		return fallback
	}
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
