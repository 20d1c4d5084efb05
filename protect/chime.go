package protect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/brutella/hc/log"
)

const chimesPath = "/proxy/protect/api/chimes"

// Chime is a doorbell chime as reported by the NVR.
// Raw keeps the whole JSON object, vendor fields included.
type Chime struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Type            string `json:"type"`
	MAC             string `json:"mac"`
	FirmwareVersion string `json:"firmwareVersion"`
	IsConnected     bool   `json:"isConnected"`
	Volume          Volume `json:"volume"`

	Raw json.RawMessage `json:"-"`
}

func (c *Chime) UnmarshalJSON(data []byte) error {
	type plain Chime
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.ID == "" {
		return errors.New("chime without id")
	}
	p.Raw = append(json.RawMessage(nil), data...)
	*c = Chime(p)
	return nil
}

// Volume is a chime volume in [0,100]. The NVR may send it as a JSON number
// or as a string; floats are truncated and strings parsed up to the first
// non-digit. null is rejected.
type Volume int

func (v *Volume) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return errors.New("volume is null")
	}
	n, err := parseVolume(data)
	if err != nil {
		return err
	}
	*v = Volume(n)
	return nil
}

func parseVolume(data []byte) (int, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return 0, err
	}

	switch x := raw.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("volume %q: %w", x, err)
		}
		return int(f), nil
	case string:
		return parseLeadingInt(x)
	default:
		return 0, fmt.Errorf("volume: unsupported JSON type %T", raw)
	}
}

// parseLeadingInt reads an optionally signed integer prefix, ignoring leading spaces.
func parseLeadingInt(s string) (int, error) {
	t := strings.TrimLeft(s, " \t\r\n")
	end := 0
	if end < len(t) && (t[end] == '-' || t[end] == '+') {
		end++
	}
	digits := end
	for end < len(t) && t[end] >= '0' && t[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, fmt.Errorf("volume %q is not a number", s)
	}
	return strconv.Atoi(t[:end])
}

// ChimeService exposes the chime operations of an NVR.
type ChimeService struct {
	client      *Client
	maxAttempts int
}

// NewChimeService builds the service on top of client, using its MaxAttempts.
func NewChimeService(client *Client) *ChimeService {
	return &ChimeService{
		client:      client,
		maxAttempts: client.Config().MaxAttempts,
	}
}

// ListDevices returns the chimes in the order the NVR lists them.
func (s *ChimeService) ListDevices(ctx context.Context) ([]Chime, error) {
	const op = "list chimes"

	var chimes []Chime
	err := s.retry(ctx, op, func() error {
		resp, err := s.client.Do(ctx, http.MethodGet, chimesPath, nil)
		if err != nil {
			return err
		}
		log.Debug.Printf("%s: %s", op, resp.Body)

		chimes = nil
		if err := json.Unmarshal(resp.Body, &chimes); err != nil {
			return &ParseError{Op: op, Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chimes, nil
}

// GetChime returns a single chime.
func (s *ChimeService) GetChime(ctx context.Context, id string) (Chime, error) {
	op := "get chime " + id

	var chime Chime
	err := s.retry(ctx, op, func() error {
		resp, err := s.client.Do(ctx, http.MethodGet, chimePath(id), nil)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(resp.Body, &chime); err != nil {
			return &ParseError{Op: op, Err: err}
		}
		return nil
	})
	return chime, err
}

// GetVolume returns the current volume of a chime.
func (s *ChimeService) GetVolume(ctx context.Context, id string) (int, error) {
	op := "get volume " + id

	var volume int
	err := s.retry(ctx, op, func() error {
		resp, err := s.client.Do(ctx, http.MethodGet, chimePath(id), nil)
		if err != nil {
			return err
		}

		var body struct {
			Volume *Volume `json:"volume"`
		}
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			return &ParseError{Op: op, Err: err}
		}
		if body.Volume == nil {
			return &ParseError{Op: op, Err: errors.New("missing volume field")}
		}
		volume = int(*body.Volume)
		return nil
	})
	return volume, err
}

// SetVolume changes the volume of a chime. The value is sent as is;
// the NVR decides whether it is acceptable.
func (s *ChimeService) SetVolume(ctx context.Context, id string, value int) error {
	op := "set volume " + id

	return s.retry(ctx, op, func() error {
		_, err := s.client.Do(ctx, http.MethodPatch, chimePath(id), map[string]int{"volume": value})
		return err
	})
}

// retry runs fn until it succeeds, fails with a non-retryable error or
// runs out of attempts. The client has already dropped the session and
// waited out the backoff when fn returns a retryable error.
func (s *ChimeService) retry(ctx context.Context, op string, fn func() error) error {
	var err error
	attempt := 0
	for s.maxAttempts <= 0 || attempt < s.maxAttempts {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return fmt.Errorf("%s: %w (last error: %v)", op, ctxErr, err)
			}
			return fmt.Errorf("%s: %w", op, ctxErr)
		}

		attempt++
		err = fn()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			log.Info.Printf("%s: %v", op, err)
			return err
		}
		log.Debug.Printf("%s: attempt %d failed: %v", op, attempt, err)
	}

	retriesExhaustedTotal.WithLabelValues(operationLabel(op)).Inc()
	log.Info.Printf("%s: giving up after %d attempts: %v", op, attempt, err)
	return &RetryError{Op: op, Attempts: attempt, Err: err}
}

func chimePath(id string) string {
	return chimesPath + "/" + url.PathEscape(id)
}

// operationLabel strips the chime id from an operation name.
func operationLabel(op string) string {
	for _, prefix := range []string{"list chimes", "get chime", "get volume", "set volume"} {
		if strings.HasPrefix(op, prefix) {
			return prefix
		}
	}
	return "other"
}
