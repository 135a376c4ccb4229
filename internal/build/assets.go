package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/sitewright/internal/logfields"
	"git.home.luguber.info/inful/sitewright/pkg/plugin"
)

// stageAssets copies the site assets directory and every plugin-provided
// asset tree into the output.
func (b *Builder) stageAssets(ctx context.Context, bs *buildState) error {
	n, err := b.copyAssets(ctx, bs)
	bs.assets = n
	return err
}

func (b *Builder) copyAssets(ctx context.Context, bs *buildState) (int, error) {
	srcDir := b.path(b.cfg.AssetsDir)
	base := path.Clean(filepath.ToSlash(b.cfg.AssetsDir))

	list, err := assetList(srcDir)
	if err != nil {
		return 0, fmt.Errorf("scan assets: %w", err)
	}
	list = hookValue(bs.log, plugin.HookAssetsBeforeCopy,
		b.plugins.ExecuteHook(ctx, plugin.HookAssetsBeforeCopy, list), list)

	copied := 0
	for _, rel := range list {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		dst := filepath.Join(bs.outDir, filepath.FromSlash(path.Join(base, rel)))
		if err := copyFile(filepath.Join(srcDir, filepath.FromSlash(rel)), dst); err != nil {
			return copied, fmt.Errorf("copy asset %s: %w", rel, err)
		}
		copied++
	}

	// Plugin assets land under <assets>/<plugin name>/ so plugins cannot
	// clobber site files or each other.
	for _, inst := range b.plugins.Instances() {
		provider, ok := inst.Impl.(plugin.AssetProvider)
		if !ok {
			continue
		}
		dstDir := filepath.Join(bs.outDir, filepath.FromSlash(base), inst.Name())
		n, err := copyFS(provider.Assets(), dstDir)
		if err != nil {
			return copied, fmt.Errorf("copy %s assets: %w", inst.Name(), err)
		}
		if n > 0 {
			bs.log.Debug("plugin assets copied", logfields.Plugin(inst.Name()), logfields.Count(n))
		}
		copied += n
	}

	b.plugins.ExecuteHook(ctx, plugin.HookAssetsAfterCopy, list)
	return copied, nil
}

// assetList walks dir and returns relative slash paths of its regular
// files, sorted. A missing directory yields an empty list; sites without
// assets are fine.
func assetList(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && p != dir {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// copyFS materializes a plugin's asset tree under dstDir.
func copyFS(fsys fs.FS, dstDir string) (int, error) {
	if fsys == nil {
		return 0, nil
	}
	copied := 0
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		dst := filepath.Join(dstDir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return err
		}
		copied++
		return nil
	})
	return copied, err
}
