package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"

	"github.com/paulschiretz/recall/pkg/flagparse"
	"github.com/paulschiretz/recall/pkg/plog"
	"github.com/paulschiretz/recall/pkg/profile"
	"github.com/paulschiretz/recall/pkg/util"
)

// RunProfile lists, shows, adds or removes saved profiles. Listings are
// written to out.
func RunProfile(ctx context.Context, flagMap map[string]any, out io.Writer) error {
	action, ok := flagMap["action"].(flagparse.ProfileAction)
	if !ok {
		return fmt.Errorf("profile needs an action: list, show, add or remove")
	}
	name, _ := flagMap["name"].(string)

	store, storePath, err := loadProfileStore(flagMap)
	if err != nil {
		return err
	}

	switch action {
	case flagparse.ProfileList:
		names := store.Names()
		if len(names) == 0 {
			fmt.Fprintf(out, "No profiles saved in %s\n", storePath)
			return nil
		}
		for _, n := range names {
			p := store.Profiles[n]
			fmt.Fprintf(out, "%s\t%s -> %s\n", n, p.Source, p.Destination)
		}
		return nil

	case flagparse.ProfileShow:
		p, err := store.Get(name)
		if err != nil {
			return err
		}
		writeProfile(out, name, p)
		return nil

	case flagparse.ProfileAdd:
		p := profileFromFlags(flagMap)
		if err := store.Put(name, p); err != nil {
			return err
		}
		if err := store.Save(afero.NewOsFs(), storePath); err != nil {
			return err
		}
		plog.Info("Profile saved", "name", name, "path", storePath)
		return nil

	case flagparse.ProfileRemove:
		if err := store.Delete(name); err != nil {
			return err
		}
		if err := store.Save(afero.NewOsFs(), storePath); err != nil {
			return err
		}
		plog.Info("Profile removed", "name", name, "path", storePath)
		return nil
	}
	return fmt.Errorf("internal error: unknown profile action %q", action)
}

// profileFromFlags builds a profile from the add flags. Paths are stored
// absolute so the profile works from any working directory.
func profileFromFlags(flagMap map[string]any) profile.Profile {
	var p profile.Profile
	if v, ok := flagMap["source"].(string); ok {
		p.Source = absOrAsIs(v)
	}
	if v, ok := flagMap["destination"].(string); ok {
		p.Destination = absOrAsIs(v)
	}
	if v, ok := flagMap["check-content"].(bool); ok {
		p.CheckContent = v
	}
	if v, ok := flagMap["workers"].(int); ok {
		p.Workers = v
	}
	if v, ok := flagMap["exclude"].([]string); ok {
		p.Exclude = v
	}
	if v, ok := flagMap["pre-backup-hooks"].([]string); ok {
		p.PreBackupHooks = v
	}
	if v, ok := flagMap["post-backup-hooks"].([]string); ok {
		p.PostBackupHooks = v
	}
	return p
}

func absOrAsIs(path string) string {
	if path == "" {
		return ""
	}
	abs, err := util.ExpandedAbsPath(path)
	if err != nil {
		return path
	}
	return abs
}

func writeProfile(out io.Writer, name string, p profile.Profile) {
	fmt.Fprintf(out, "Profile:       %s\n", name)
	fmt.Fprintf(out, "Source:        %s\n", p.Source)
	fmt.Fprintf(out, "Destination:   %s\n", p.Destination)
	fmt.Fprintf(out, "Check content: %t\n", p.CheckContent)
	if p.Workers > 0 {
		fmt.Fprintf(out, "Workers:       %d\n", p.Workers)
	}
	if len(p.Exclude) > 0 {
		fmt.Fprintf(out, "Exclude:       %s\n", strings.Join(p.Exclude, ", "))
	}
	if len(p.PreBackupHooks) > 0 {
		fmt.Fprintf(out, "Pre-backup:    %s\n", strings.Join(p.PreBackupHooks, "; "))
	}
	if len(p.PostBackupHooks) > 0 {
		fmt.Fprintf(out, "Post-backup:   %s\n", strings.Join(p.PostBackupHooks, "; "))
	}
}

// loadProfileStore reads the store named by -config, or the one in the
// user's config directory.
func loadProfileStore(flagMap map[string]any) (*profile.Store, string, error) {
	storePath := profile.DefaultPath()
	if v, ok := flagMap["config"].(string); ok && v != "" {
		expanded, err := util.ExpandedAbsPath(v)
		if err != nil {
			return nil, "", fmt.Errorf("invalid -config path: %w", err)
		}
		storePath = expanded
	}
	store, err := profile.Load(afero.NewOsFs(), storePath)
	if err != nil {
		return nil, "", err
	}
	return store, storePath, nil
}
