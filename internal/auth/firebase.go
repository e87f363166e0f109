package auth

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
)

// IDTokenVerifier checks an ID token issued by an external identity
// provider and returns the account's uid and verified email.
type IDTokenVerifier interface {
	Verify(ctx context.Context, idToken string) (uid, email string, err error)
}

// FirebaseVerifier verifies Firebase Authentication ID tokens.
type FirebaseVerifier struct {
	client *fbauth.Client
}

// NewFirebaseVerifier builds a verifier from an initialized Firebase app.
func NewFirebaseVerifier(ctx context.Context, app *firebase.App) (*FirebaseVerifier, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth client: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

// Verify validates idToken and extracts the email claim.
func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (string, string, error) {
	tok, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return "", "", fmt.Errorf("verify id token: %w", err)
	}
	email, _ := tok.Claims["email"].(string)
	if email == "" {
		return "", "", errors.New("id token has no email claim")
	}
	return tok.UID, email, nil
}
