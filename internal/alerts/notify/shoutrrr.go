package notify

import (
	"context"
	"errors"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"
)

// ShoutrrrChannel delivers notifications through shoutrrr service
// URLs (smtp, ntfy, telegram and friends).
type ShoutrrrChannel struct {
	router *router.ServiceRouter
}

// NewShoutrrrChannel constructs a channel from one or more service URLs.
func NewShoutrrrChannel(urls ...string) (*ShoutrrrChannel, error) {
	if len(urls) == 0 {
		return nil, errors.New("shoutrrr channel: no urls")
	}
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, err
	}
	return &ShoutrrrChannel{router: sender}, nil
}

// Send delivers the content to every configured service.
func (c *ShoutrrrChannel) Send(_ context.Context, subject, content string) error {
	if c == nil || c.router == nil {
		return errors.New("shoutrrr channel: nil router")
	}
	params := types.Params{"title": subject}
	var errs []error
	for _, err := range c.router.Send(content, &params) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
