package inbound

import (
	"context"
	"time"

	"github.com/nvidia/onebot-core-bridge/internal/seg"
)

// fakeQuerier is a no-op GatewayQuerier stand-in for tests that never
// need an actual round trip (HandleForwardMessage operates on an
// already-fetched manifest and never calls Query itself).
type fakeQuerier struct{}

func (fakeQuerier) Query(ctx context.Context, action string, params map[string]any, timeout time.Duration) (map[string]any, error) {
	return map[string]any{}, nil
}

// fakeImageFetcher returns a fixed base64 payload without touching the
// network, so tests exercising the image-threshold paths stay hermetic.
type fakeImageFetcher struct{}

func (fakeImageFetcher) FetchBase64(ctx context.Context, url string) (string, error) {
	return "ZmFrZS1pbWFnZS1ieXRlcw==", nil
}

func countLeavesOfType(s seg.Seg, kind string) int {
	switch s.Type {
	case seg.Kind(kind):
		return 1
	case seg.KindSeglist:
		n := 0
		for _, c := range s.DataList() {
			n += countLeavesOfType(c, kind)
		}
		return n
	default:
		return 0
	}
}

func anyTextPlaceholder(s seg.Seg, text string) bool {
	switch s.Type {
	case seg.KindText:
		return s.DataString() == text
	case seg.KindSeglist:
		for _, c := range s.DataList() {
			if anyTextPlaceholder(c, text) {
				return true
			}
		}
	}
	return false
}
