package boot

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

type fakeSSM struct {
	value string
	err   error
	asked string
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.asked = aws.ToString(in.Name)
	if f.err != nil {
		return nil, f.err
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: aws.String(f.value)}}, nil
}

func TestGeminiKeyFromEnv(t *testing.T) {
	t.Setenv(GeminiKeyEnv, "env-key")
	f := &fakeSSM{value: "ssm-key"}

	key, err := GeminiKey(context.Background(), f, "/litter/gemini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "env-key" {
		t.Errorf("key = %q, want env-key", key)
	}
	if f.asked != "" {
		t.Error("SSM consulted although the env var is set")
	}
}

func TestGeminiKeyFromSSM(t *testing.T) {
	t.Setenv(GeminiKeyEnv, "")
	f := &fakeSSM{value: "ssm-key"}

	key, err := GeminiKey(context.Background(), f, "/litter/gemini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "ssm-key" {
		t.Errorf("key = %q, want ssm-key", key)
	}
	if f.asked != "/litter/gemini" {
		t.Errorf("asked for %q", f.asked)
	}
}

func TestGeminiKeyNoSource(t *testing.T) {
	t.Setenv(GeminiKeyEnv, "")
	t.Setenv("HOME", t.TempDir())

	_, err := GeminiKey(context.Background(), &fakeSSM{err: errors.New("ParameterNotFound")}, "/missing")
	if !errors.Is(err, ErrNoGeminiKey) {
		t.Errorf("err = %v, want ErrNoGeminiKey", err)
	}

	_, err = GeminiKey(context.Background(), nil, "")
	if !errors.Is(err, ErrNoGeminiKey) {
		t.Errorf("err = %v, want ErrNoGeminiKey", err)
	}
}

func TestCredentialPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path, err := credentialPath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := filepath.Join(home, ".litter-report", "credentials.gpg"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
}

func TestKeyFromGPGFileNotFound(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if _, err := keyFromGPG(context.Background()); err == nil {
		t.Error("expected error when credentials file does not exist")
	}
}
