package corpus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"wordmap/internal/domain"
	"wordmap/internal/vectorstore"
)

const progressEvery = 50000

// Stats summarizes a parse run.
type Stats struct {
	Declared int // entry count from the header
	Dim      int // vector dimension from the header
	Parsed   int // entries added to the index
	Filtered int // entries outside the supported languages
	Skipped  int // malformed or duplicate entries
}

// ParseOptions controls which entries are kept.
type ParseOptions struct {
	Languages []string
	// ExpectedDim is the configured dimension. A different header dimension is
	// logged and the header wins.
	ExpectedDim int
	Progress    func(parsed int)
	Logger      *slog.Logger
}

// ParseFile parses a decompressed corpus file.
func ParseFile(path string, opts ParseOptions) (*vectorstore.Index, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("%w: %v", domain.ErrCorpusFormat, err)
	}
	defer f.Close()
	return Parse(f, opts)
}

// Parse reads a header line "<count> <dim>" followed by one "<key> <d1> ... <dN>"
// line per entry and returns an index of the entries whose key language is
// supported. Malformed entry lines are skipped and counted.
func Parse(r io.Reader, opts ParseOptions) (*vectorstore.Index, Stats, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	supported := make(map[string]struct{}, len(opts.Languages))
	for _, l := range opts.Languages {
		supported[l] = struct{}{}
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var st Stats
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, st, fmt.Errorf("%w: reading header: %v", domain.ErrCorpusFormat, err)
		}
		return nil, st, fmt.Errorf("%w: empty corpus", domain.ErrCorpusFormat)
	}
	declared, dim, err := parseHeader(sc.Text())
	if err != nil {
		return nil, st, err
	}
	st.Declared, st.Dim = declared, dim
	if opts.ExpectedDim > 0 && opts.ExpectedDim != dim {
		log.Warn("corpus dimension differs from configuration, using header value",
			"header_dim", dim, "configured_dim", opts.ExpectedDim)
	}
	log.Info("parsing corpus", "declared", declared, "dim", dim, "languages", opts.Languages)

	idx := vectorstore.NewIndex(dim)
	vec := make(domain.Vector, dim)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		key := fields[0]
		lang, _, ok := domain.ParseKey(key)
		if !ok {
			st.Filtered++
			continue
		}
		if _, ok := supported[lang]; !ok {
			st.Filtered++
			continue
		}
		if len(fields)-1 != dim || !parseVector(fields[1:], vec) {
			st.Skipped++
			continue
		}
		if err := idx.Add(key, vec); err != nil {
			st.Skipped++
			continue
		}
		st.Parsed++
		if st.Parsed%progressEvery == 0 {
			log.Info("corpus parse progress", "parsed", st.Parsed)
			if opts.Progress != nil {
				opts.Progress(st.Parsed)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, st, fmt.Errorf("%w: %v", domain.ErrCorpusFormat, err)
	}
	if st.Parsed == 0 {
		return nil, st, fmt.Errorf("%w: no entries for languages %v", domain.ErrCorpusFormat, opts.Languages)
	}
	log.Info("corpus parsed", "parsed", st.Parsed, "filtered", st.Filtered, "skipped", st.Skipped)
	return idx, st, nil
}

func parseHeader(line string) (count, dim int, err error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("%w: header %q is not \"<count> <dim>\"", domain.ErrCorpusFormat, line)
	}
	count, cerr := strconv.Atoi(fields[0])
	dim, derr := strconv.Atoi(fields[1])
	if err := errors.Join(cerr, derr); err != nil {
		return 0, 0, fmt.Errorf("%w: header %q: %v", domain.ErrCorpusFormat, line, err)
	}
	if count < 0 || dim <= 0 {
		return 0, 0, fmt.Errorf("%w: header %q has invalid sizes", domain.ErrCorpusFormat, line)
	}
	return count, dim, nil
}

// parseVector fills dst from fields. dst is reused between lines; Index.Add copies it.
func parseVector(fields []string, dst domain.Vector) bool {
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return false
		}
		dst[i] = float32(x)
	}
	return true
}
