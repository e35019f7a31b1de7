package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func resetGlobalConfig() {
	globalConfig = &Config{
		BindAddr:        "0.0.0.0",
		DatabasePath:    ".tally",
		ApiPort:         8080,
		MetricsPort:     8081,
		BlobPlugin:      DefaultBlobPlugin,
		MetadataPlugin:  DefaultMetadataPlugin,
		RunMode:         RunModeServe,
		CooldownSeconds: 60,
		KeyDir:          ".tally/keys",
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

func TestLoad_CompareFullStruct(t *testing.T) {
	resetGlobalConfig()
	yamlContent := `
bindAddr: "127.0.0.1"
databasePath: ".tally-test"
apiPort: 9080
metricsPort: 9081
administrator: "admin-1"
cooldownSeconds: 30
keyDir: "/var/lib/tally/keys"
oracleUrl: "http://oracle.internal:9000"
oracleCallbackUrl: "http://tally.internal:9080/v1/oracle/callback"
`

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "test-tally.yaml")

	err := os.WriteFile(tmpFile, []byte(yamlContent), 0644)
	if err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	defer os.Remove(tmpFile)

	expected := &Config{
		BindAddr:          "127.0.0.1",
		DatabasePath:      ".tally-test",
		ApiPort:           9080,
		MetricsPort:       9081,
		BlobPlugin:        DefaultBlobPlugin,
		MetadataPlugin:    DefaultMetadataPlugin,
		RunMode:           RunModeServe,
		Administrator:     "admin-1",
		CooldownSeconds:   30,
		KeyDir:            "/var/lib/tally/keys",
		OracleUrl:         "http://oracle.internal:9000",
		OracleCallbackUrl: "http://tally.internal:9080/v1/oracle/callback",
		ShutdownTimeout:   DefaultShutdownTimeout,
	}

	actual, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if !reflect.DeepEqual(actual, expected) {
		t.Errorf(
			"Loaded config does not match expected.\nActual: %+v\nExpected: %+v",
			actual,
			expected,
		)
	}
}

func TestLoad_WithoutConfigFile_UsesDefaults(t *testing.T) {
	resetGlobalConfig()

	// Without Config file
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	// Expected is the original default values from globalConfig
	expected := &Config{
		BindAddr:        "0.0.0.0",
		DatabasePath:    ".tally",
		ApiPort:         8080,
		MetricsPort:     8081,
		BlobPlugin:      DefaultBlobPlugin,
		MetadataPlugin:  DefaultMetadataPlugin,
		RunMode:         RunModeServe,
		CooldownSeconds: 60,
		KeyDir:          ".tally/keys",
		ShutdownTimeout: DefaultShutdownTimeout,
	}

	if !reflect.DeepEqual(cfg, expected) {
		t.Errorf(
			"config mismatch without file:\nExpected: %+v\nGot:      %+v",
			expected,
			cfg,
		)
	}
}

func TestLoad_WithRunModeDev(t *testing.T) {
	resetGlobalConfig()

	yamlContent := `
runMode: "dev"
`

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "test-dev-mode.yaml")

	err := os.WriteFile(tmpFile, []byte(yamlContent), 0644)
	if err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if !cfg.RunMode.IsDevMode() {
		t.Errorf("expected dev run mode, got: %v", cfg.RunMode)
	}
}

func TestLoad_WithInvalidRunMode(t *testing.T) {
	resetGlobalConfig()

	yamlContent := `
runMode: "bogus"
`

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "test-bad-mode.yaml")

	err := os.WriteFile(tmpFile, []byte(yamlContent), 0644)
	if err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := LoadConfig(tmpFile); err == nil {
		t.Error("expected error for invalid run mode, got nil")
	}
}

func TestKeyPathDefaults(t *testing.T) {
	resetGlobalConfig()

	cfg := GetConfig()
	if got := cfg.IdentityKeyPath(); got != filepath.Join(".tally/keys", "identity.json") {
		t.Errorf("unexpected identity key path: %s", got)
	}
	cfg.IdentityKeyFile = "/etc/tally/identity.json"
	if got := cfg.IdentityKeyPath(); got != "/etc/tally/identity.json" {
		t.Errorf("explicit identity key path not honored: %s", got)
	}
	if got := cfg.OracleSecretPath(); got != filepath.Join(".tally/keys", "oracle-secret.json") {
		t.Errorf("unexpected oracle secret path: %s", got)
	}
	if got := cfg.PaillierPublicKeyPath(); got != filepath.Join(".tally/keys", "paillier-public.json") {
		t.Errorf("unexpected paillier public key path: %s", got)
	}
	if got := cfg.PaillierPrivateKeyPath(); got != filepath.Join(".tally/keys", "paillier-private.json") {
		t.Errorf("unexpected paillier private key path: %s", got)
	}
}
