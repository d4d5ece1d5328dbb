package clireader

import (
	"fmt"

	"chatrun/internal/domain/models/chatrun"
)

// NewMapper returns the LineMapper for a CLI provider identity.
func NewMapper(identity chatrun.ProviderIdentity) (LineMapper, error) {
	switch identity {
	case chatrun.ProviderCLIA:
		return NewMapperA(), nil
	case chatrun.ProviderCLIB:
		return NewMapperB(), nil
	case chatrun.ProviderCLIC:
		return NewMapperC(), nil
	default:
		return nil, fmt.Errorf("clireader: no line mapper for provider identity %q", identity)
	}
}
