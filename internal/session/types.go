package session

import "context"

// Driver launches browsers.
type Driver interface {
	Launch(ctx context.Context) (Browser, error)
}

// Browser is a running browser process or remote connection.
type Browser interface {
	NewContext(ctx context.Context) (BrowserContext, error)
	Close() error
}

// BrowserContext groups pages sharing cookies and storage.
type BrowserContext interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// FormField is one visible form control as seen by a routine.
type FormField struct {
	Selector string `json:"selector"`
	Name     string `json:"name"`
	Label    string `json:"label"`
	Kind     string `json:"kind"`
	Required bool   `json:"required"`
	Value    string `json:"value"`
}

// Page is the single tab a routine drives. Implementations must bound
// every call by ctx.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL() string
	Exists(ctx context.Context, selector string) (bool, error)
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	FormFields(ctx context.Context) ([]FormField, error)
	BodyText(ctx context.Context) (string, error)
	Close() error
}
