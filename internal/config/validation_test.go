package config_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlisia/mlst/internal/config"
)

func TestDefaultTunablesValidate(t *testing.T) {
	require.NoError(t, config.Default().Validate())
}

func TestValidateRejectsZeroMaxTries(t *testing.T) {
	cfg := config.Default()
	cfg.MaxTries = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrInvalidTunable))

	var verrs config.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, []string{"MaxTries"}, verrs.Fields())
}

func TestValidateCollectsEveryRejectedField(t *testing.T) {
	cfg := config.Default()
	cfg.MaxHistorySize = 0
	cfg.AckTimeout = 0
	cfg.Variant = config.EnergyVariant(99)

	err := cfg.Validate()
	require.Error(t, err)

	var verrs config.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.ElementsMatch(t, []string{"MaxHistorySize", "AckTimeout", "Variant"}, verrs.Fields())
}

func TestValidateRejectsPortCollisions(t *testing.T) {
	cfg := config.Default()
	cfg.AckPort = cfg.MessagingPort

	err := cfg.Validate()
	require.Error(t, err)
	var verrs config.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Contains(t, verrs.Fields(), "AckPort")
}
