package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/angelmondragon/farmgate-checkout/pkg/enums"
	"github.com/angelmondragon/farmgate-checkout/pkg/logger"
)

// Prober reports whether the live processor can be reached.
type Prober interface {
	Probe(ctx context.Context) error
}

// HTTPProber treats any HTTP answer from the target as reachable.
type HTTPProber struct {
	client *resty.Client
	url    string
}

func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	client := resty.New()
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &HTTPProber{client: client, url: url}
}

func (p *HTTPProber) Probe(ctx context.Context) error {
	if p.url == "" {
		return fmt.Errorf("probe url is empty")
	}
	if _, err := p.client.R().SetContext(ctx).Get(p.url); err != nil {
		return fmt.Errorf("probing %s: %w", p.url, err)
	}
	return nil
}

type selectionMetrics interface {
	IncGatewaySelected(gateway string)
}

// Selector picks a gateway once per checkout attempt.
type Selector struct {
	live           Gateway
	simulated      Gateway
	prober         Prober
	forceSimulated bool
	metrics        selectionMetrics
	logg           *logger.Logger
}

// NewSelector requires the simulated gateway; live and prober may be nil when Square is not configured.
func NewSelector(live, simulated Gateway, prober Prober, forceSimulated bool, metrics selectionMetrics, logg *logger.Logger) (*Selector, error) {
	if simulated == nil {
		return nil, fmt.Errorf("simulated gateway required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Selector{
		live:           live,
		simulated:      simulated,
		prober:         prober,
		forceSimulated: forceSimulated,
		metrics:        metrics,
		logg:           logg,
	}, nil
}

// Select runs the reachability probe and returns the gateway for the whole attempt.
func (s *Selector) Select(ctx context.Context) Gateway {
	chosen := s.choose(ctx)
	if s.metrics != nil {
		s.metrics.IncGatewaySelected(string(chosen.Kind()))
	}
	s.logg.Info(s.logg.WithField(ctx, "gateway", string(chosen.Kind())), "payment gateway selected")
	return chosen
}

func (s *Selector) choose(ctx context.Context) Gateway {
	if s.forceSimulated || s.live == nil || s.prober == nil {
		return s.simulated
	}
	if err := s.prober.Probe(ctx); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "probe_error", err.Error()), "live processor unreachable, using simulated gateway")
		return s.simulated
	}
	return s.live
}

// ByKind returns the gateway recorded on an attempt.
func (s *Selector) ByKind(kind enums.GatewayKind) (Gateway, error) {
	switch kind {
	case enums.GatewayKindSimulated:
		return s.simulated, nil
	case enums.GatewayKindLive:
		if s.live == nil {
			return nil, fmt.Errorf("live gateway not configured")
		}
		return s.live, nil
	default:
		return nil, fmt.Errorf("unknown gateway kind %q", kind)
	}
}
