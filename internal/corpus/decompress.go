package corpus

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/klauspost/compress/gzip"

	"wordmap/internal/domain"
)

// Decompress gunzips src into dest unless dest already exists.
func Decompress(src, dest string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	if fileExists(dest) {
		log.Info("decompressed corpus already present", "path", dest)
		return nil
	}
	if !fileExists(src) {
		return fmt.Errorf("%w: archive %s not found", domain.ErrCorpusFormat, src)
	}
	log.Info("decompressing corpus", "src", src, "dest", dest)

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCorpusFormat, err)
	}
	defer in.Close()

	zr, err := gzip.NewReader(bufio.NewReaderSize(in, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCorpusFormat, err)
	}
	defer zr.Close()

	part := dest + ".part"
	out, err := os.Create(part)
	if err != nil {
		return err
	}
	w := bufio.NewWriterSize(out, 1<<20)
	n, err := io.Copy(w, zr)
	if err == nil {
		err = w.Flush()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(part)
		return fmt.Errorf("%w: %v", domain.ErrCorpusFormat, err)
	}
	if err := os.Rename(part, dest); err != nil {
		_ = os.Remove(part)
		return err
	}
	log.Info("corpus decompressed", "path", dest, "bytes", n)
	return nil
}
