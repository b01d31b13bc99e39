package infra

import "testing"

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SECRET_KEY", "test-secret")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}
}

func TestLoadConfigRequiresSecretKey(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/drapestudio")
	t.Setenv("SECRET_KEY", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when SECRET_KEY is missing")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/drapestudio")
	t.Setenv("SECRET_KEY", "test-secret")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.StorageBackend != "local" {
		t.Errorf("StorageBackend = %q, want local", cfg.StorageBackend)
	}
	if cfg.DailyCostLimitUSD != 10.00 {
		t.Errorf("DailyCostLimitUSD = %v, want 10.00", cfg.DailyCostLimitUSD)
	}
	if cfg.QueueName != "drapestudio:generations" {
		t.Errorf("QueueName = %q", cfg.QueueName)
	}
	if cfg.DBMaxConns != 10 || cfg.DBMinConns != 1 {
		t.Errorf("pool bounds = %d/%d, want 10/1", cfg.DBMaxConns, cfg.DBMinConns)
	}
}

func TestLoadConfigRejectsUnknownStorageBackend(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/drapestudio")
	t.Setenv("SECRET_KEY", "test-secret")
	t.Setenv("STORAGE_BACKEND", "gcs")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for unsupported storage backend")
	}
}

func TestLoadConfigS3RequiresBucket(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/drapestudio")
	t.Setenv("SECRET_KEY", "test-secret")
	t.Setenv("STORAGE_BACKEND", "s3")
	t.Setenv("S3_BUCKET", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when S3 bucket is missing")
	}
}
