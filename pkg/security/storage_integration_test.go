package security

import "testing"

func testStaticConfig() string {
	return `{"allowedPrefixes":["s3://bucket/warehouse/"],"signingKey":"k"}`
}

func TestStaticStorageIntegration_GetSubscopedCreds(t *testing.T) {
	s := NewStaticStorageIntegration(0)

	creds, err := s.GetSubscopedCreds(
		testStaticConfig(),
		[]string{"s3://bucket/warehouse/"},
		[]string{"s3://bucket/warehouse/ns1/table1/"},
		nil,
	)
	if err != nil {
		t.Fatalf("GetSubscopedCreds() error = %v", err)
	}
	if creds[CredentialPropertySecretAccessKey] == "" {
		t.Error("expected non-empty vended token")
	}
	if creds[CredentialPropertyExpiresAt] == "" {
		t.Error("expected expiry to be set")
	}
}

func TestStaticStorageIntegration_GetSubscopedCreds_RejectsOutOfScope(t *testing.T) {
	s := NewStaticStorageIntegration(0)

	_, err := s.GetSubscopedCreds(
		testStaticConfig(),
		[]string{"s3://bucket/warehouse/"},
		[]string{"s3://other-bucket/secret/"},
		nil,
	)
	if err == nil {
		t.Fatal("expected error for out-of-scope location, got nil")
	}
}

func TestStaticStorageIntegration_ValidateAccessToLocations(t *testing.T) {
	s := NewStaticStorageIntegration(0)

	result, err := s.ValidateAccessToLocations(testStaticConfig(), []string{"read"}, []string{
		"s3://bucket/warehouse/ns1/table1/",
		"s3://other-bucket/secret/",
	})
	if err != nil {
		t.Fatalf("ValidateAccessToLocations() error = %v", err)
	}
	if !result["s3://bucket/warehouse/ns1/table1/"].Allowed {
		t.Error("expected warehouse location to be allowed")
	}
	if result["s3://other-bucket/secret/"].Allowed {
		t.Error("expected other-bucket location to be disallowed")
	}
}

func TestStaticStorageIntegration_RejectsMalformedConfig(t *testing.T) {
	s := NewStaticStorageIntegration(0)
	if _, err := s.ValidateAccessToLocations("not json", nil, []string{"s3://x"}); err == nil {
		t.Error("expected error for malformed config, got nil")
	}
}
