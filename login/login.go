// Package login drives a one-shot SSO login: it runs the external AWS
// CLI login flow and, when portal credentials are available, completes
// the hosted sign-in form in a real browser via chromedp. The outcome
// that matters is a fresh token appearing in the SSO cache directory;
// the monitor daemon picks that up as a file change.
package login

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"

	"github.com/mirrorbucket/credmon/credstore"
)

// Options configures a login run.
type Options struct {
	Profile  string
	StartURL string // SSO portal start URL, from the AWS config profile
	Username string // portal credentials; browser automation is skipped when empty
	Password string
	Headless bool
	CacheDir string        // SSO token cache directory to watch for the result
	Timeout  time.Duration // overall deadline for the flow
}

// Run performs the login and blocks until a fresh token lands in the
// cache directory or the timeout expires.
func Run(ctx context.Context, opts Options) error {
	started := time.Now()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "aws", "sso", "login", "--profile", opts.Profile)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start aws sso login: %w", err)
	}
	log.Info().Str("profile", opts.Profile).Msg("Started AWS SSO login flow")

	if opts.Username != "" && opts.Password != "" {
		if err := completePortalLogin(ctx, opts); err != nil {
			// The device flow may still be completed by hand; report and
			// keep waiting for the token.
			log.Warn().Err(err).Msg("Browser automation failed, complete the login manually")
		}
	}

	tokenErr := waitForToken(ctx, opts.CacheDir, started)

	if err := cmd.Wait(); err != nil && tokenErr != nil {
		return fmt.Errorf("aws sso login failed: %w", err)
	}
	if tokenErr != nil {
		return tokenErr
	}
	log.Info().Msg("SSO login successful, token cached")
	return nil
}

// completePortalLogin fills the hosted sign-in form. Headless mode is
// tried first; on failure the flow is retried with a visible window,
// which also covers portals that require an interactive MFA step.
func completePortalLogin(ctx context.Context, opts Options) error {
	err := driveBrowser(ctx, opts, opts.Headless)
	if err != nil && opts.Headless {
		log.Warn().Err(err).Msg("Headless login failed, retrying with window mode.")
		err = driveBrowser(ctx, opts, false)
	}
	return err
}

func driveBrowser(ctx context.Context, opts Options, headless bool) error {
	browserCtx, cancel, err := createChromeContext(ctx, headless)
	if err != nil {
		return err
	}
	defer cancel()

	timeout := 4 * time.Minute
	if headless {
		timeout = 45 * time.Second
	}
	runCtx, runCancel := context.WithTimeout(browserCtx, timeout)
	defer runCancel()

	log.Info().Str("url", opts.StartURL).Bool("headless", headless).Msg("Driving SSO portal login")
	return chromedp.Run(runCtx,
		chromedp.Navigate(opts.StartURL),
		chromedp.WaitVisible(`#username`, chromedp.ByID),
		chromedp.SendKeys(`#username`, opts.Username, chromedp.ByID),
		chromedp.SendKeys(`#password`, opts.Password, chromedp.ByID),
		chromedp.Click(`#signin-button`, chromedp.ByID),
		chromedp.ActionFunc(func(ctx context.Context) error {
			// The portal redirects through an approval page; wait until
			// it settles rather than asserting a fixed URL shape.
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(500 * time.Millisecond):
				}
				var title string
				if err := chromedp.Title(&title).Do(ctx); err != nil {
					return err
				}
				if title != "" {
					return nil
				}
			}
		}),
	)
}

// createChromeContext locates a Chrome/Chromium binary and prepares a
// chromedp context.
func createChromeContext(parent context.Context, headless bool) (context.Context, context.CancelFunc, error) {
	var execPath string
	if p, err := exec.LookPath("google-chrome"); err == nil {
		execPath = p
	} else if p, err := exec.LookPath("chromium"); err == nil {
		execPath = p
	} else if p, err := exec.LookPath("chrome"); err == nil {
		execPath = p
	} else {
		return nil, nil, fmt.Errorf("no Chrome or Chromium executable found in PATH")
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(execPath),
		chromedp.Flag("headless", headless),
		chromedp.NoSandbox,
		chromedp.WindowSize(1920, 1080),
	)
	allocatorCtx, cancelAllocator := chromedp.NewExecAllocator(parent, opts...)
	ctx, cancelContext := chromedp.NewContext(allocatorCtx, chromedp.WithLogf(log.Debug().Msgf))
	return ctx, func() {
		cancelContext()
		cancelAllocator()
	}, nil
}

// waitForToken polls the cache directory until a token newer than the
// flow start appears.
func waitForToken(ctx context.Context, cacheDir string, since time.Time) error {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Waiting for SSO token..."),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	defer bar.Finish()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for a fresh SSO token in %s", cacheDir)
		case <-ticker.C:
			_ = bar.Add(1)
			if freshToken(cacheDir, since) {
				return nil
			}
		}
	}
}

func freshToken(cacheDir string, since time.Time) bool {
	for _, token := range credstore.ReadTokens(cacheDir) {
		if !token.ExpiryKnown || !token.ExpiresAt.After(time.Now()) {
			continue
		}
		info, err := os.Stat(token.Path)
		if err == nil && info.ModTime().After(since) {
			return true
		}
	}
	return false
}
