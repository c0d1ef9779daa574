package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

type mockAPI struct {
	out *secretsmanager.GetSecretValueOutput
	err error
}

func (m *mockAPI) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	return m.out, m.err
}

func TestFetch(t *testing.T) {
	tests := []struct {
		name    string
		api     *mockAPI
		want    string
		wantErr bool
	}{
		{
			name: "decodes json object",
			api:  &mockAPI{out: &secretsmanager.GetSecretValueOutput{SecretString: aws.String(`{"resend_api_key":"re_123"}`)}},
			want: "re_123",
		},
		{
			name:    "api error",
			api:     &mockAPI{err: errors.New("denied")},
			wantErr: true,
		},
		{
			name:    "binary only secret",
			api:     &mockAPI{out: &secretsmanager.GetSecretValueOutput{}},
			wantErr: true,
		},
		{
			name:    "not json",
			api:     &mockAPI{out: &secretsmanager.GetSecretValueOutput{SecretString: aws.String("plain")}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := Fetch(context.Background(), tt.api, "notify/prod")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if values["resend_api_key"] != tt.want {
				t.Errorf("expected %q, got %q", tt.want, values["resend_api_key"])
			}
		})
	}
}
