package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/dearvn/tradovate-go/internal/api"
)

// ErrNoContract means neither lookup returned a contract.
var ErrNoContract = errors.New("no matching contract")

// errBadContractID marks an "@" symbol that is not a contract id.
var errBadContractID = errors.New(`"@" symbol must be followed by a contract id`)

// ContractFinder is the REST lookup used to resolve symbols. *api.Client
// implements it.
type ContractFinder interface {
	FindContract(ctx context.Context, name, token string) (*api.Contract, error)
	SuggestContracts(ctx context.Context, text, token string) ([]api.Contract, error)
}

// contractResolver maps symbols to contract ids. Concurrent lookups of one
// symbol share a single REST round trip and results are cached for the
// socket's lifetime.
type contractResolver struct {
	finder ContractFinder
	logger *slog.Logger

	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]int64
}

func newContractResolver(finder ContractFinder, logger *slog.Logger) *contractResolver {
	return &contractResolver{
		finder: finder,
		logger: logger,
		cache:  make(map[string]int64),
	}
}

// contractRef interprets a symbol field. A JSON number or "@" followed by
// digits is already a contract id; any other "@" symbol is rejected and
// everything else is a symbol to look up.
func contractRef(v any) (id int64, symbol string, err error) {
	switch x := v.(type) {
	case nil:
		return 0, "", errors.New("body has no symbol")
	case string:
		if x == "" {
			return 0, "", errors.New("empty symbol")
		}
		if rest, ok := strings.CutPrefix(x, "@"); ok {
			n, err := strconv.ParseInt(rest, 10, 64)
			if err != nil {
				return 0, "", fmt.Errorf("%w: %q", errBadContractID, x)
			}
			return n, "", nil
		}
		return 0, x, nil
	case int:
		return int64(x), "", nil
	case int32:
		return int64(x), "", nil
	case int64:
		return x, "", nil
	case float64:
		if x != math.Trunc(x) {
			return 0, "", fmt.Errorf("contract id %v is not an integer", x)
		}
		return int64(x), "", nil
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return 0, "", fmt.Errorf("contract id %s: %w", x, err)
		}
		return n, "", nil
	default:
		return 0, "", fmt.Errorf("unsupported symbol type %T", v)
	}
}

func (r *contractResolver) resolve(ctx context.Context, symbol, token string) (int64, error) {
	key := strings.ToUpper(symbol)

	if id, ok := r.cached(key); ok {
		return id, nil
	}

	// The shared lookup outlives any one caller's cancellation; each caller
	// still stops waiting when its own ctx is done.
	lookupCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		if id, ok := r.cached(key); ok {
			return id, nil
		}
		id, err := r.lookup(lookupCtx, symbol, token)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cache[key] = id
		r.mu.Unlock()
		return id, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return 0, &SymbolResolutionError{Symbol: symbol, Err: res.Err}
		}
		return res.Val.(int64), nil
	case <-ctx.Done():
		return 0, &SymbolResolutionError{Symbol: symbol, Err: ctx.Err()}
	}
}

func (r *contractResolver) cached(key string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.cache[key]
	return id, ok
}

// lookup tries contract/find, then contract/suggest. Among suggestions an
// exact name match wins; otherwise the first one is used and logged.
func (r *contractResolver) lookup(ctx context.Context, symbol, token string) (int64, error) {
	contract, findErr := r.finder.FindContract(ctx, symbol, token)
	if findErr == nil && contract != nil {
		return contract.ID, nil
	}
	if findErr != nil {
		r.logger.Debug("contract find failed, trying suggest", "symbol", symbol, "error", findErr)
	}

	suggestions, err := r.finder.SuggestContracts(ctx, symbol, token)
	if err != nil {
		return 0, errors.Join(findErr, err)
	}
	if len(suggestions) == 0 {
		return 0, errors.Join(findErr, ErrNoContract)
	}

	for _, c := range suggestions {
		if strings.EqualFold(c.Name, symbol) {
			return c.ID, nil
		}
	}

	names := make([]string, len(suggestions))
	for i, c := range suggestions {
		names[i] = c.Name
	}
	r.logger.Warn("symbol matched no contract exactly, using first suggestion",
		"symbol", symbol,
		"chosen", suggestions[0].Name,
		"suggestions", names,
	)
	return suggestions[0].ID, nil
}
