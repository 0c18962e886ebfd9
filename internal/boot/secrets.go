package boot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
)

const (
	// GeminiKeyEnv is checked before any other key source.
	GeminiKeyEnv = "GEMINI_API_KEY"

	credentialDir  = ".litter-report"
	credentialFile = "credentials.gpg"
)

// ErrNoGeminiKey is returned when no key source has a key.
var ErrNoGeminiKey = errors.New("Gemini API key not found: set GEMINI_API_KEY, configure an SSM parameter, or create ~/.litter-report/credentials.gpg")

// ParameterGetter is the SSM call used to read secrets.
type ParameterGetter interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// GeminiKey resolves the Gemini API key. Sources, in order:
//  1. GEMINI_API_KEY environment variable
//  2. SSM parameter param (skipped when ssmClient is nil or param is empty)
//  3. GPG-encrypted file at ~/.litter-report/credentials.gpg
func GeminiKey(ctx context.Context, ssmClient ParameterGetter, param string) (string, error) {
	if key := os.Getenv(GeminiKeyEnv); key != "" {
		log.Debug().Msg("Using Gemini API key from environment variable")
		return key, nil
	}

	if ssmClient != nil && param != "" {
		key, err := keyFromSSM(ctx, ssmClient, param)
		if err == nil {
			return key, nil
		}
		log.Warn().Err(err).Str("param", param).Msg("Gemini API key not readable from SSM")
	}

	key, err := keyFromGPG(ctx)
	if err == nil && key != "" {
		log.Debug().Msg("Using Gemini API key from GPG encrypted file")
		return key, nil
	}
	log.Debug().Err(err).Msg("No Gemini API key in GPG file")
	return "", ErrNoGeminiKey
}

func keyFromSSM(ctx context.Context, ssmClient ParameterGetter, param string) (string, error) {
	start := time.Now()
	out, err := ssmClient.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("get parameter %s: %w", param, err)
	}
	if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
		return "", fmt.Errorf("parameter %s is empty", param)
	}
	log.Debug().Str("param", param).Dur("elapsed", time.Since(start)).Msg("Gemini API key loaded from SSM")
	return aws.ToString(out.Parameter.Value), nil
}

// keyFromGPG decrypts the key file. A .gpg-passphrase file next to the
// executable or in the working directory enables non-interactive use; it is
// ignored unless it is owner-only.
func keyFromGPG(ctx context.Context) (string, error) {
	credPath, err := credentialPath()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(credPath); os.IsNotExist(err) {
		return "", fmt.Errorf("GPG credentials file not found at %s", credPath)
	}

	args := []string{"--decrypt", "--quiet"}
	if pp := passphrasePath(); pp != "" {
		if fi, err := os.Stat(pp); err == nil {
			if mode := fi.Mode().Perm(); mode&0o077 != 0 {
				log.Warn().
					Str("passphrase_file", pp).
					Str("permissions", fmt.Sprintf("%04o", mode)).
					Msg("Passphrase file has insecure permissions (should be 0600); skipping")
			} else {
				args = append(args, "--pinentry-mode", "loopback", "--passphrase-file", pp)
			}
		}
	}
	args = append(args, credPath)

	out, err := exec.CommandContext(ctx, "gpg", args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("GPG decryption failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("GPG decryption failed: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

func credentialPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, credentialDir, credentialFile), nil
}

func passphrasePath() string {
	if exe, err := os.Executable(); err == nil {
		p := filepath.Join(filepath.Dir(exe), ".gpg-passphrase")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		return filepath.Join(cwd, ".gpg-passphrase")
	}
	return ""
}
