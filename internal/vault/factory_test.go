package vault

import (
	"testing"

	"catalog-go/internal/config"
)

func TestNewVaultFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ArchiveConfig
		wantErr bool
		wantNil bool
	}{
		{name: "none", cfg: config.ArchiveConfig{Type: "none"}, wantNil: true},
		{name: "empty type", cfg: config.ArchiveConfig{}, wantNil: true},
		{name: "memory", cfg: config.ArchiveConfig{Type: "memory", Name: "m"}},
		{name: "filesystem", cfg: config.ArchiveConfig{Type: "filesystem", Name: "fs", FSRoot: t.TempDir()}},
		{name: "filesystem without root", cfg: config.ArchiveConfig{Type: "filesystem"}, wantErr: true, wantNil: true},
		{name: "s3 without bucket", cfg: config.ArchiveConfig{Type: "s3"}, wantErr: true, wantNil: true},
		{name: "unknown", cfg: config.ArchiveConfig{Type: "tape"}, wantErr: true, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewVaultFromConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewVaultFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if (got == nil) != tt.wantNil {
				t.Fatalf("NewVaultFromConfig() nil = %v, wantNil %v", got == nil, tt.wantNil)
			}
			if got != nil {
				if err := got.ValidateSetup(); err != nil {
					t.Errorf("ValidateSetup() error = %v", err)
				}
			}
		})
	}
}
