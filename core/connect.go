package core

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"pkt.systems/juno/internal/logx"
	"pkt.systems/juno/schema"
)

const (
	adviceSelfSigned = "If you were expecting a self-signed certificate, this is probably a false alarm."
	adviceIntercept  = "This may be a sign of a man-in-the-middle attack."
)

var (
	certificateButtons = []string{"Continue", "Abort"}
	hostPattern        = regexp.MustCompile(`[a-z]*://([^/]*)`)
)

// OpenConnectDialog shows the connect dialog, creating it on first use.
func (s *Shell) OpenConnectDialog(ctx context.Context) error {
	if s.reg.Focus(ctx, schema.ConnectDialogResource) {
		return nil
	}
	var once sync.Once
	state, created, err := s.reg.Create(ctx, schema.ConnectDialogResource, false, func(state *WindowState) WindowOptions {
		return s.windowOptions(state, func(event SurfaceEvent) {
			if event.Type != SurfaceLoaded {
				return
			}
			once.Do(func() {
				if surface := s.reg.surfaceOf(state); surface != nil {
					surface.Send(schema.Message{Type: schema.MessageSetSources, Sources: s.settings.Sources()})
				}
			})
		})
	})
	if err != nil {
		return fmt.Errorf("create connect dialog: %w", err)
	}
	if !created {
		s.reg.Focus(ctx, schema.ConnectDialogResource)
		return nil
	}
	logx.WithWindow(s.logger, state.ID).Debug("connect dialog opened")
	s.emit(schema.WindowEvent{Type: schema.WindowOpened, WindowID: state.ID, Resource: state.Resource})
	surface := s.reg.surfaceOf(state)
	if err := surface.Load(ctx, s.pages.ConnectDialog(state.ID, surface.ID())); err != nil {
		return fmt.Errorf("load connect dialog: %w", err)
	}
	return nil
}

// CloseConnectDialog requests the connect dialog to close, reporting whether it was open.
func (s *Shell) CloseConnectDialog(ctx context.Context) bool {
	return s.reg.Close(ctx, schema.ConnectDialogResource)
}

// OnCertificateError implements CertificateHandler with trust on first use:
// a certificate matching the one accepted earlier for the host passes
// silently, anything else asks the user.
func (s *Shell) OnCertificateError(ctx context.Context, surface Surface, certErr CertificateError) bool {
	host := certificateHost(certErr.URL)
	log := s.logger.With("host", host, "code", certErr.Code)
	if trusted, ok := s.settings.Certificate(host); ok && trusted == certErr.Certificate {
		log.Debug("certificate accepted from trust store")
		return true
	}

	box := schema.MessageBox{
		Type:     schema.MessageBoxWarning,
		Title:    "Certificate Error",
		Message:  "Certificate Error",
		Detail:   certificateDetail(host, certErr),
		Buttons:  certificateButtons,
		CancelID: 1,
	}
	choice, err := s.display.MessageBox(ctx, surface, box)
	if err != nil {
		log.Warn("certificate prompt failed", "err", err)
		choice = box.CancelID
	}
	if choice >= 0 && choice < len(box.Buttons) && box.Buttons[choice] == "Continue" {
		s.settings.UpdateCertificate(host, certErr.Certificate)
		log.Info("certificate trusted")
		return true
	}

	log.Info("certificate rejected")
	if err := s.OpenConnectDialog(ctx); err != nil {
		log.Warn("connect dialog open failed", "err", err)
	}
	if err := surface.Destroy(ctx); err != nil {
		log.Warn("window destroy failed", "err", err)
	}
	return false
}

func certificateHost(url string) string {
	match := hostPattern.FindStringSubmatch(url)
	if len(match) < 2 {
		return url
	}
	return match[1]
}

func certificateDetail(host string, certErr CertificateError) string {
	advice := adviceIntercept
	if certErr.Code == "net::ERR_CERT_AUTHORITY_INVALID" {
		advice = adviceSelfSigned
	}
	return fmt.Sprintf("Juno encountered a certificate error when connecting to %s, for a certificate claiming to be issued by %s.  The error was\n\n%s\n\n%s",
		host, certErr.Issuer, certErr.Code, advice)
}
