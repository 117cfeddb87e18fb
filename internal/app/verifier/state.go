package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// StateHandler puts the provider into the named state before an interaction that
// declares it is replayed.
type StateHandler func(ctx context.Context, consumer, state string) error

type stateChange struct {
	Consumer string `json:"consumer"`
	State    string `json:"state"`
	Action   string `json:"action"`
}

// StateChangeURL returns a StateHandler that asks the provider to set up a state by
// posting it to url. Any non 2xx answer is a failure.
func StateChangeURL(url string) StateHandler {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, consumer, state string) error {
		b, err := json.Marshal(stateChange{Consumer: consumer, State: state, Action: "setup"})
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(b))
		if err != nil {
			return errors.Wrap(err, "unable to build state change request")
		}
		req.Header.Set("Content-Type", "application/json")

		res, err := client.Do(req)
		if err != nil {
			return errors.Wrapf(err, "unable to call state change url %s", url)
		}
		defer res.Body.Close()

		if res.StatusCode < 200 || res.StatusCode > 299 {
			return errors.Errorf("state change url %s answered %d", url, res.StatusCode)
		}
		return nil
	}
}
