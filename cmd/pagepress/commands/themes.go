package commands

import (
	"fmt"
	"strings"

	foundationerrors "github.com/pagepress/pagepress/internal/foundation/errors"
)

// ThemesCmd implements the 'themes' command.
type ThemesCmd struct{}

func (t *ThemesCmd) Run(_ *Global, root *CLI) error {
	a, err := loadApp(root)
	if err != nil {
		return err
	}
	themes, errs := a.themes.List()
	for _, th := range themes {
		_, _ = fmt.Fprintf(a.out, "%-16s %-8s pages: %s\n", th.Name, th.Version, strings.Join(th.PageNames(), ", "))
		if th.Description != "" {
			_, _ = fmt.Fprintf(a.out, "  %s\n", th.Description)
		}
	}
	for _, err := range errs {
		_, _ = fmt.Fprintf(a.out, "invalid theme: %v\n", err)
	}
	if len(errs) > 0 {
		return foundationerrors.ValidationError(fmt.Sprintf("%d theme(s) failed validation", len(errs))).Build()
	}
	return nil
}
