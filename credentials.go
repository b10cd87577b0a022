package bqpipeline

import (
	"os"

	"google.golang.org/api/option"
)

// CredentialsEnv is the environment variable holding the service account key path.
const CredentialsEnv = "GOOGLE_APPLICATION_CREDENTIALS"

// CredentialsFromEnv returns a client option with the service account key
// pointed by GOOGLE_APPLICATION_CREDENTIALS.
func CredentialsFromEnv() (option.ClientOption, error) {
	return CredentialsFromFile(os.Getenv(CredentialsEnv))
}

// CredentialsFromFile returns a client option with the service account key file.
func CredentialsFromFile(path string) (option.ClientOption, error) {
	if path == "" {
		return nil, &CredentialError{Err: ErrNoCredentials}
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, &CredentialError{Path: path, Err: err}
	}
	if info.IsDir() {
		return nil, &CredentialError{Path: path, Err: ErrNoCredentials}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &CredentialError{Path: path, Err: err}
	}

	return option.WithCredentialsJSON(b), nil
}
