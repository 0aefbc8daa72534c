package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/operator-console/pkg/logger"
)

func TestConnectOptions(t *testing.T) {
	log := logger.NewNop()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "plain", cfg: Config{URL: "nats://localhost:4222", OperatorID: "op-1"}},
		{name: "token", cfg: Config{URL: "nats://localhost:4222", Token: "s3cret"}},
		{name: "missing url", cfg: Config{}, wantErr: "URL is required"},
		{name: "partial tls", cfg: Config{URL: "nats://localhost:4222", CAFile: "ca.pem"}, wantErr: "together"},
		{name: "unreadable ca", cfg: Config{URL: "nats://localhost:4222", CAFile: "missing-ca.pem", CertFile: "c.pem", KeyFile: "k.pem"}, wantErr: "CA file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := connectOptions(tt.cfg, log)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, opts)
		})
	}
}

func TestConnectOptionsAddsToken(t *testing.T) {
	log := logger.NewNop()
	plain, err := connectOptions(Config{URL: "nats://localhost:4222"}, log)
	require.NoError(t, err)
	withToken, err := connectOptions(Config{URL: "nats://localhost:4222", Token: "t"}, log)
	require.NoError(t, err)
	assert.Len(t, withToken, len(plain)+1)
}
