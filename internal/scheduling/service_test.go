package scheduling

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/carebridge/hms/pkg/logger"
)

func TestService_StopIsIdempotent(t *testing.T) {
	svc := &Service{
		logger: logger.New("error"),
		stop:   make(chan struct{}),
	}

	require.NoError(t, svc.Stop())
	require.NotPanics(t, func() { _ = svc.Stop() })
}
