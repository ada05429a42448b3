package pg

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/dropDatabas3/persona/internal/observability/logger"
)

// Migrate aplica las migraciones *_up.sql (orden ascendente) o *_down.sql
// (orden inverso) de fsys/dir. steps > 0 limita cuántas se aplican.
// Devuelve los archivos ejecutados.
func (s *Store) Migrate(ctx context.Context, fsys fs.FS, dir, action string, steps int) ([]string, error) {
	log := s.log(ctx, "Migrate").With(logger.String("action", action))

	var (
		files []string
		err   error
	)
	switch strings.ToLower(action) {
	case "up":
		files, err = ListSQL(fsys, dir, "_up.sql")
		if err != nil {
			return nil, fmt.Errorf("list up: %w", err)
		}
		sort.Strings(files)
	case "down":
		files, err = ListSQL(fsys, dir, "_down.sql")
		if err != nil {
			return nil, fmt.Errorf("list down: %w", err)
		}
		sort.Strings(files)
		reverseInPlace(files)
	default:
		return nil, fmt.Errorf("unknown action %q. Use: up | down", action)
	}

	if steps > 0 && steps < len(files) {
		files = files[:steps]
	}
	if len(files) == 0 {
		log.Info("no migrations found, nothing to do")
		return nil, nil
	}

	applied := make([]string, 0, len(files))
	for _, f := range files {
		b, err := fs.ReadFile(fsys, f)
		if err != nil {
			return applied, fmt.Errorf("read %s: %w", f, err)
		}
		start := time.Now()
		if _, err := s.pool.Exec(ctx, string(b)); err != nil {
			return applied, fmt.Errorf("exec %s: %w", f, err)
		}
		log.Info("migration applied", logger.Key(path.Base(f)), logger.Duration(time.Since(start)))
		applied = append(applied, f)
	}
	return applied, nil
}

// ListSQL lista los archivos de dir que terminan en suffix.
func ListSQL(fsys fs.FS, dir, suffix string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			name := e.Name()
			if strings.HasSuffix(strings.ToLower(name), strings.ToLower(suffix)) {
				out = append(out, path.Join(dir, name))
			}
		}
	}
	return out, nil
}

func reverseInPlace(ss []string) {
	for i, j := 0, len(ss)-1; i < j; i, j = i+1, j-1 {
		ss[i], ss[j] = ss[j], ss[i]
	}
}
