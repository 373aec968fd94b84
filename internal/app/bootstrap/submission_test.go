package bootstrap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/vocal-booking/internal/config"
	"github.com/wolfman30/vocal-booking/internal/submit"
	"github.com/wolfman30/vocal-booking/pkg/logging"
)

func TestBuildSubmitter(t *testing.T) {
	logger := logging.New("error")

	sub, err := BuildSubmitter(&appconfig.Config{SubmissionMode: appconfig.SubmissionStub, StubSubmitDelay: time.Millisecond}, nil, nil, logger)
	require.NoError(t, err)
	assert.IsType(t, &submit.StubSubmitter{}, sub)

	sub, err = BuildSubmitter(&appconfig.Config{
		SubmissionMode:    appconfig.SubmissionHTTP,
		BookingBackendURL: "https://backend.example.com/bookings",
		SubmitTimeout:     time.Second,
	}, nil, nil, logger)
	require.NoError(t, err)
	assert.IsType(t, &submit.HTTPSubmitter{}, sub)

	_, err = BuildSubmitter(&appconfig.Config{SubmissionMode: appconfig.SubmissionHTTP}, nil, nil, logger)
	assert.Error(t, err)

	_, err = BuildSubmitter(&appconfig.Config{SubmissionMode: appconfig.SubmissionStore}, nil, nil, logger)
	assert.ErrorContains(t, err, "requires a database")

	_, err = BuildSubmitter(&appconfig.Config{SubmissionMode: "fax"}, nil, nil, logger)
	assert.Error(t, err)
}
