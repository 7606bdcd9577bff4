package commands

import (
	"fmt"

	"github.com/haivivi/lifeline/pkg/cli"
	"github.com/haivivi/lifeline/pkg/exam"
	"github.com/haivivi/lifeline/pkg/kv"
	"github.com/haivivi/lifeline/pkg/storage"
)

// openStore opens the exam store configured for ctx. The returned func
// releases it.
func openStore(ctx *cli.Context) (exam.Store, func() error, error) {
	sc := ctx.Store
	if sc == nil {
		sc = &cli.StoreConfig{}
	}
	kind := sc.Kind
	if kind == "" {
		kind = cli.StoreBadger
	}
	nop := func() error { return nil }

	dir := sc.Dir
	if dir == "" && (kind == cli.StoreBadger || kind == cli.StoreLocal) {
		paths, err := cli.NewPaths(appName)
		if err != nil {
			return nil, nil, err
		}
		if err := paths.EnsureDataDir(); err != nil {
			return nil, nil, err
		}
		dir = paths.DataPath("exams")
	}

	switch kind {
	case cli.StoreBadger:
		db, err := kv.OpenBadger(dir)
		if err != nil {
			return nil, nil, err
		}
		return exam.NewKVStore(db), db.Close, nil
	case cli.StoreMemory:
		return exam.NewKVStore(kv.NewMemory()), nop, nil
	case cli.StoreLocal:
		files, err := storage.NewLocal(dir)
		if err != nil {
			return nil, nil, err
		}
		return exam.NewFileStore(files), nop, nil
	case cli.StoreS3:
		if sc.S3 == nil || sc.S3.Bucket == "" {
			return nil, nil, fmt.Errorf("s3 store needs a bucket")
		}
		client := storage.NewS3Client(*sc.S3)
		return exam.NewFileStore(storage.NewS3(client, sc.S3.Bucket, sc.S3.Prefix)), nop, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", kind)
	}
}
