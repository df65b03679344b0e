package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphmill/graphload/internal/types"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
		errCode types.ErrorCode
	}{
		{
			name: "valid config",
			config: Config{
				URI:                     "bolt://localhost:7687",
				Username:                "neo4j",
				Password:                "password",
				ConnectionTimeout:       30 * time.Second,
				MaxTransactionRetryTime: 30 * time.Second,
			},
			wantErr: false,
		},
		{
			name: "empty URI",
			config: Config{
				URI:                     "",
				Username:                "neo4j",
				Password:                "password",
				ConnectionTimeout:       30 * time.Second,
				MaxTransactionRetryTime: 30 * time.Second,
			},
			wantErr: true,
			errCode: ErrCodeInvalidConfig,
		},
		{
			name: "empty username",
			config: Config{
				URI:                     "bolt://localhost:7687",
				Username:                "",
				Password:                "password",
				ConnectionTimeout:       30 * time.Second,
				MaxTransactionRetryTime: 30 * time.Second,
			},
			wantErr: true,
			errCode: ErrCodeInvalidConfig,
		},
		{
			name: "empty password",
			config: Config{
				URI:                     "bolt://localhost:7687",
				Username:                "neo4j",
				Password:                "",
				ConnectionTimeout:       30 * time.Second,
				MaxTransactionRetryTime: 30 * time.Second,
			},
			wantErr: true,
			errCode: ErrCodeInvalidConfig,
		},
		{
			name: "invalid connection timeout",
			config: Config{
				URI:                     "bolt://localhost:7687",
				Username:                "neo4j",
				Password:                "password",
				ConnectionTimeout:       0,
				MaxTransactionRetryTime: 30 * time.Second,
			},
			wantErr: true,
			errCode: ErrCodeInvalidConfig,
		},
		{
			name: "invalid retry timeout",
			config: Config{
				URI:                     "bolt://localhost:7687",
				Username:                "neo4j",
				Password:                "password",
				ConnectionTimeout:       30 * time.Second,
				MaxTransactionRetryTime: -1 * time.Second,
			},
			wantErr: true,
			errCode: ErrCodeInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()

			if tt.wantErr {
				require.Error(t, err)
				var loadErr *types.LoadError
				if errors.As(err, &loadErr) {
					assert.Equal(t, tt.errCode, loadErr.Code)
				}
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "bolt://localhost:7687", config.URI)
	assert.Equal(t, "neo4j", config.Username)
	assert.Equal(t, "", config.Database)
	assert.Equal(t, 50, config.MaxConnectionPoolSize)
	assert.Equal(t, 30*time.Second, config.ConnectionTimeout)
	assert.Equal(t, 30*time.Second, config.MaxTransactionRetryTime)
	require.NoError(t, config.Validate())
}

func TestNewNeo4jRunner_InvalidConfig(t *testing.T) {
	_, err := NewNeo4jRunner(Config{})
	require.Error(t, err)
	assert.Equal(t, ErrCodeInvalidConfig, types.CodeOf(err))
}

func TestMockRunner_RecordsCalls(t *testing.T) {
	ctx := context.Background()
	mock := NewMockRunner()

	require.NoError(t, mock.Connect(ctx))
	_, err := mock.RunWrite(ctx, "UNWIND $batch AS row RETURN row", map[string]any{"batch": []any{}})
	require.NoError(t, err)
	require.NoError(t, mock.Close(ctx))

	calls := mock.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "Connect", calls[0].Method)
	assert.Equal(t, "RunWrite", calls[1].Method)
	assert.Equal(t, "Close", calls[2].Method)

	writes := mock.WriteCalls()
	require.Len(t, writes, 1)
	assert.Contains(t, writes[0].Cypher, "UNWIND")
}

func TestMockRunner_FailWritesTimes(t *testing.T) {
	ctx := context.Background()
	mock := NewMockRunner()
	transient := types.NewRetryableError(types.WRITE_TRANSIENT, "deadlock")
	mock.FailWritesTimes(2, transient)

	_, err := mock.RunWrite(ctx, "stmt", nil)
	require.Error(t, err)
	_, err = mock.RunWrite(ctx, "stmt", nil)
	require.Error(t, err)
	_, err = mock.RunWrite(ctx, "stmt", nil)
	require.NoError(t, err)
}
