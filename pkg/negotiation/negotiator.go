package negotiation

import (
	"context"
	"errors"
	"fmt"

	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	apis "github.com/Student-osmania/SDN-offloading/pkg/api/v1alpha1"
	"github.com/Student-osmania/SDN-offloading/pkg/constants"
)

// Confirmer sends a grant request to the remote domain.
type Confirmer interface {
	Confirm(ctx context.Context, req apis.ConfirmRequest) (*apis.ConfirmResponse, error)
}

// Credentials identify the local UE toward the remote domain.
type Credentials struct {
	UEID   string `yaml:"ueID"`
	MAC    string `yaml:"mac"`
	Secret string `yaml:"secret"`
}

type Grant struct {
	AllocatedMbps float64
	Session       apis.Session
}

// Negotiator runs the confirm exchange for one UE and keeps its session.
type Negotiator struct {
	remote   Confirmer
	creds    Credentials
	sessions *SessionStore
	clock    clock.PassiveClock
}

func NewNegotiator(remote Confirmer, creds Credentials, sessions *SessionStore, clk clock.PassiveClock) *Negotiator {
	if sessions == nil {
		sessions = NewSessionStore()
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Negotiator{remote: remote, creds: creds, sessions: sessions, clock: clk}
}

func (n *Negotiator) Sessions() *SessionStore {
	return n.sessions
}

// Negotiate asks for requestedMbps to carry volumeMB over WiFi. The token
// is derived on every attempt so a refreshed secret is picked up.
func (n *Negotiator) Negotiate(ctx context.Context, requestedMbps, volumeMB float64) (Grant, error) {
	req := apis.ConfirmRequest{
		UEID:        n.creds.UEID,
		MAC:         n.creds.MAC,
		RequestedBW: requestedMbps,
		Token:       Token(n.creds.Secret, n.creds.MAC),
	}

	resp, err := n.remote.Confirm(ctx, req)
	if err != nil {
		negotiationResults.WithLabelValues("error").Inc()
		n.sessions.Update(n.creds.UEID, n.creds.MAC, func(s *apis.Session) {
			s.LastReason = "transport_error"
			s.UpdatedAt = n.clock.Now()
		})
		return Grant{}, fmt.Errorf("confirm %.2f Mbps for %s: %w", requestedMbps, n.creds.UEID, err)
	}

	if !resp.Success {
		negotiationResults.WithLabelValues(resp.Reason).Inc()
		sess := n.sessions.Update(n.creds.UEID, n.creds.MAC, func(s *apis.Session) {
			if resp.Reason == constants.NegotiationInvalidCredentials || resp.Reason == constants.NegotiationUnknownUE {
				s.Authenticated = false
			}
			s.LastReason = resp.Reason
			s.UpdatedAt = n.clock.Now()
		})
		klog.V(2).Infof("Negotiation for %s rejected: %s (authenticated=%v)", n.creds.UEID, resp.Reason, sess.Authenticated)
		return Grant{Session: sess}, &RejectionError{Reason: resp.Reason}
	}

	negotiationResults.WithLabelValues("granted").Inc()
	sess := n.sessions.Update(n.creds.UEID, n.creds.MAC, func(s *apis.Session) {
		s.Authenticated = true
		s.GrantedBWMbps = resp.AllocatedBW
		s.QuotaConsumedMB += volumeMB
		s.Grants++
		s.LastReason = ""
		s.UpdatedAt = n.clock.Now()
	})
	klog.V(2).Infof("Negotiation for %s granted %.2f/%.2f Mbps (quota %.1f MB)",
		n.creds.UEID, resp.AllocatedBW, requestedMbps, sess.QuotaConsumedMB)
	return Grant{AllocatedMbps: resp.AllocatedBW, Session: sess}, nil
}

// IsRejection reports whether err is a refusal rather than a transport
// failure, and returns its reason.
func IsRejection(err error) (string, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}
