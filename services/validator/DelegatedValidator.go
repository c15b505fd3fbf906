package validator

import (
	"context"

	"github.com/bsv-blockchain/chainlite/model"
	"github.com/bsv-blockchain/chainlite/settings"
	"github.com/bsv-blockchain/chainlite/ulogger"
)

// DelegatedValidator trusts the daemon the blocks were read from.
type DelegatedValidator struct {
	logger  ulogger.Logger
	variant settings.NodeVariant
}

func NewDelegatedValidator(logger ulogger.Logger, variant settings.NodeVariant) *DelegatedValidator {
	initPrometheusMetrics()

	return &DelegatedValidator{
		logger:  logger,
		variant: variant,
	}
}

func (v *DelegatedValidator) Variant() settings.NodeVariant {
	return v.variant
}

func (v *DelegatedValidator) ValidateBlock(_ context.Context, block *model.Block, prev *model.Block) error {
	if err := checkConnects(block, prev); err != nil {
		prometheusValidatorRejected.Inc()
		return err
	}

	prometheusValidatorAccepted.Inc()

	return nil
}
