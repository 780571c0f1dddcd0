package application

import (
	"errors"
	"strings"
	"testing"
)

var cheapArgon2id = Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := CreatePasswordHash("correct horse", cheapArgon2id)
	if err != nil {
		t.Fatalf("CreatePasswordHash returned error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$") {
		t.Fatalf("unexpected encoding: %q", hash)
	}

	if err := VerifyPassword(hash, "correct horse"); err != nil {
		t.Fatalf("expected password to verify, got %v", err)
	}
	if err := VerifyPassword(hash, "battery staple"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	again, err := CreatePasswordHash("correct horse", cheapArgon2id)
	if err != nil {
		t.Fatalf("CreatePasswordHash returned error: %v", err)
	}
	if again == hash {
		t.Fatalf("expected a fresh salt per hash")
	}
}

func TestVerifyPasswordRejectsMalformedHashes(t *testing.T) {
	cases := map[string]struct {
		hash string
		want error
	}{
		"empty":          {hash: "", want: ErrInvalidPasswordHash},
		"other scheme":   {hash: "$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$a2V5", want: ErrInvalidPasswordHash},
		"future version": {hash: "$argon2id$v=20$m=1024,t=1,p=1$c2FsdA$a2V5", want: ErrIncompatiblePasswordVersion},
		"bad params":     {hash: "$argon2id$v=19$m=x,t=1,p=1$c2FsdA$a2V5", want: ErrInvalidPasswordHash},
		"bad salt":       {hash: "$argon2id$v=19$m=1024,t=1,p=1$!!$a2V5", want: ErrInvalidPasswordHash},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if err := VerifyPassword(tc.hash, "anything"); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
