package repository

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/okian/fedrec/internal/domain/model"
)

func encodeState(state *model.GlobalModelState) ([]byte, error) {
	if state == nil || state.Version == 0 {
		return nil, ErrInvalidVersion
	}
	b, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode version %d: %w", state.Version, err)
	}
	return b, nil
}

// decodeState rebuilds a snapshot and recomputes its signature from the
// stored layers so a hand-edited record cannot carry a stale one.
func decodeState(b []byte) (*model.GlobalModelState, error) {
	var st model.GlobalModelState
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
	}
	if err := st.Weights.Validate(); err != nil {
		return nil, fmt.Errorf("%w: version %d: %w", ErrCorruptRecord, st.Version, err)
	}
	st.Signature = st.Weights.Signature()
	return &st, nil
}
