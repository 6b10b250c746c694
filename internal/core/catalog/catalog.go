package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/satishbabariya/cohortsql/internal/core/dialect"
)

// SchemaFact is the resolved existence of one table column.
type SchemaFact struct {
	Table  string
	Column string
	Exists bool
}

const factCacheSize = 4096

// Catalog is an immutable, validated schema catalog. It is safe for
// concurrent use.
type Catalog struct {
	doc     Document
	dialect dialect.Dialect
	columns map[string]map[string]bool
	order   map[string][]string
	sources map[Role]string
	facts   *lru.Cache[string, SchemaFact]

	oneToMany  map[string]bool
	firstStay  map[string]bool
	byColumn   map[string][]string
	diagPrefix map[string]int
}

// New validates doc and builds a Catalog from it. Table, column and lookup
// names are normalized to lower case.
func New(doc Document) (*Catalog, error) {
	doc = normalize(doc)
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	d := dialect.Oracle
	if doc.Dialect != "" {
		parsed, err := dialect.Parse(doc.Dialect)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
		}
		d = parsed
	}

	facts, err := lru.New[string, SchemaFact](factCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create fact cache: %w", err)
	}

	c := &Catalog{
		doc:        doc,
		dialect:    d,
		columns:    make(map[string]map[string]bool, len(doc.Tables)),
		order:      make(map[string][]string, len(doc.Tables)),
		sources:    doc.Sources.byRole(),
		facts:      facts,
		oneToMany:  toSet(doc.OneToMany),
		firstStay:  toSet(doc.FirstStayColumns),
		byColumn:   make(map[string][]string),
		diagPrefix: doc.ICDVersions,
	}
	for table, cols := range doc.Tables {
		set := make(map[string]bool, len(cols))
		for _, col := range cols {
			set[col] = true
			c.byColumn[col] = append(c.byColumn[col], table)
		}
		c.columns[table] = set
		c.order[table] = cols
	}
	for col := range c.byColumn {
		sort.Strings(c.byColumn[col])
	}
	return c, nil
}

// Reader is the subset of a storage backend Load needs.
type Reader interface {
	Read(ctx context.Context, path string) ([]byte, error)
}

// Load reads and parses a catalog document from storage.
func Load(ctx context.Context, r Reader, path string) (*Catalog, error) {
	data, err := r.Read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Document returns a copy of the normalized source document.
func (c *Catalog) Document() Document {
	return c.doc
}

// Dialect returns the dialect the catalog's database speaks.
func (c *Catalog) Dialect() dialect.Dialect {
	return c.dialect
}

// HasTable reports whether the table exists.
func (c *Catalog) HasTable(table string) bool {
	_, ok := c.columns[strings.ToLower(table)]
	return ok
}

// HasColumn resolves whether table has column.
func (c *Catalog) HasColumn(table, column string) SchemaFact {
	table, column = strings.ToLower(table), strings.ToLower(column)
	key := table + "." + column
	if fact, ok := c.facts.Get(key); ok {
		return fact
	}
	fact := SchemaFact{Table: table, Column: column, Exists: c.columns[table][column]}
	c.facts.Add(key, fact)
	return fact
}

// Columns returns the declared columns of table in document order.
func (c *Catalog) Columns(table string) []string {
	cols := c.order[strings.ToLower(table)]
	if cols == nil {
		return nil
	}
	out := make([]string, len(cols))
	copy(out, cols)
	return out
}

// Tables returns every table name, sorted.
func (c *Catalog) Tables() []string {
	out := make([]string, 0, len(c.columns))
	for t := range c.columns {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// TablesWithColumn returns the sorted tables that declare column.
func (c *Catalog) TablesWithColumn(column string) []string {
	return append([]string(nil), c.byColumn[strings.ToLower(column)]...)
}

// Source returns the table playing role, or "" when the role is unmapped.
func (c *Catalog) Source(role Role) string {
	return c.sources[role]
}

// Signal resolves a measurement name.
func (c *Catalog) Signal(name string) (Signal, bool) {
	s, ok := c.doc.Signals[normalizeKey(name)]
	return s, ok
}

// DiagnosisCodes resolves a diagnosis name to ICD prefixes.
func (c *Catalog) DiagnosisCodes(name string) ([]Code, bool) {
	codes, ok := c.doc.Diagnoses[normalizeKey(name)]
	return codes, ok
}

// ProcedureCodes resolves a procedure name to ICD prefixes.
func (c *Catalog) ProcedureCodes(name string) ([]Code, bool) {
	codes, ok := c.doc.Procedures[normalizeKey(name)]
	return codes, ok
}

// DerivedScore resolves a derived score name.
func (c *Catalog) DerivedScore(name string) (DerivedScore, bool) {
	s, ok := c.doc.DerivedScores[normalizeKey(name)]
	return s, ok
}

// RenameTable returns the real name for a commonly mistaken table name.
func (c *Catalog) RenameTable(name string) (string, bool) {
	to, ok := c.doc.Renames.Tables[strings.ToLower(name)]
	return to, ok
}

// RenameColumn returns the real name of column as used on table. A
// table-qualified rename takes precedence over a bare one.
func (c *Catalog) RenameColumn(table, column string) (string, bool) {
	table, column = strings.ToLower(table), strings.ToLower(column)
	if table != "" {
		if to, ok := c.doc.Renames.Columns[table+"."+column]; ok {
			return to, true
		}
	}
	to, ok := c.doc.Renames.Columns[column]
	return to, ok
}

// Dictionary returns the label dictionary for an events table.
func (c *Catalog) Dictionary(table string) (Dictionary, bool) {
	d, ok := c.doc.Dictionaries[strings.ToLower(table)]
	return d, ok
}

// DictionaryTables returns the set of tables that serve as label dictionaries.
func (c *Catalog) DictionaryTables() map[string]Dictionary {
	out := make(map[string]Dictionary, len(c.doc.Dictionaries))
	for _, d := range c.doc.Dictionaries {
		out[d.Table] = d
	}
	return out
}

// KeywordTables returns the keyword-to-table corrections.
func (c *Catalog) KeywordTables() []KeywordTable {
	return c.doc.KeywordTables
}

// IsOneToMany reports whether table holds many rows per admission.
func (c *Catalog) IsOneToMany(table string) bool {
	return c.oneToMany[strings.ToLower(table)]
}

// IsFirstStayColumn reports whether column flags a first ICU or hospital stay.
func (c *Catalog) IsFirstStayColumn(column string) bool {
	return c.firstStay[strings.ToLower(column)]
}

// Values returns the known distinct values of table.column.
func (c *Catalog) Values(table, column string) []string {
	return c.doc.Values[strings.ToLower(table)+"."+strings.ToLower(column)]
}

// ValueColumns returns the "table.column" keys that have a value vocabulary.
func (c *Catalog) ValueColumns() []string {
	out := make([]string, 0, len(c.doc.Values))
	for k := range c.doc.Values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ICDVersionOverride returns the configured coding-system version for an
// ambiguous code prefix.
func (c *Catalog) ICDVersionOverride(prefix string) (int, bool) {
	prefix = strings.ToUpper(prefix)
	best, bestLen := 0, 0
	for p, v := range c.diagPrefix {
		if strings.HasPrefix(prefix, p) && len(p) > bestLen {
			best, bestLen = v, len(p)
		}
	}
	return best, bestLen > 0
}

func normalize(doc Document) Document {
	tables := make(map[string][]string, len(doc.Tables))
	for t, cols := range doc.Tables {
		lc := make([]string, len(cols))
		for i, col := range cols {
			lc[i] = strings.ToLower(col)
		}
		tables[strings.ToLower(t)] = lc
	}
	doc.Tables = tables

	s := &doc.Sources
	for _, p := range []*string{&s.Admissions, &s.Stays, &s.Patients, &s.Diagnoses, &s.Procedures,
		&s.ChartEvents, &s.LabEvents, &s.Items, &s.LabItems} {
		*p = strings.ToLower(*p)
	}

	signals := make(map[string]Signal, len(doc.Signals))
	for name, sig := range doc.Signals {
		sig.Table = strings.ToLower(sig.Table)
		sig.ValueColumn = strings.ToLower(sig.ValueColumn)
		sig.TimeColumn = strings.ToLower(sig.TimeColumn)
		signals[normalizeKey(name)] = sig
	}
	doc.Signals = signals
	doc.Diagnoses = normalizeCodes(doc.Diagnoses)
	doc.Procedures = normalizeCodes(doc.Procedures)

	scores := make(map[string]DerivedScore, len(doc.DerivedScores))
	for name, sc := range doc.DerivedScores {
		sc.Table, sc.Column = strings.ToLower(sc.Table), strings.ToLower(sc.Column)
		sc.Key, sc.TimeColumn = strings.ToLower(sc.Key), strings.ToLower(sc.TimeColumn)
		scores[normalizeKey(name)] = sc
	}
	doc.DerivedScores = scores

	doc.Renames.Tables = lowerMap(doc.Renames.Tables)
	doc.Renames.Columns = lowerMap(doc.Renames.Columns)

	dicts := make(map[string]Dictionary, len(doc.Dictionaries))
	for t, d := range doc.Dictionaries {
		d.Table, d.Key, d.Label = strings.ToLower(d.Table), strings.ToLower(d.Key), strings.ToLower(d.Label)
		dicts[strings.ToLower(t)] = d
	}
	doc.Dictionaries = dicts

	keywordTables := make([]KeywordTable, len(doc.KeywordTables))
	for i, kt := range doc.KeywordTables {
		keywordTables[i] = KeywordTable{
			Keywords: lowerAll(kt.Keywords),
			Table:    strings.ToLower(kt.Table),
			Replaces: lowerAll(kt.Replaces),
		}
	}
	doc.KeywordTables = keywordTables

	values := make(map[string][]string, len(doc.Values))
	for k, v := range doc.Values {
		values[strings.ToLower(k)] = v
	}
	doc.Values = values

	icd := make(map[string]int, len(doc.ICDVersions))
	for p, v := range doc.ICDVersions {
		icd[strings.ToUpper(p)] = v
	}
	doc.ICDVersions = icd
	return doc
}

func normalizeCodes(in map[string][]Code) map[string][]Code {
	out := make(map[string][]Code, len(in))
	for name, codes := range in {
		norm := make([]Code, len(codes))
		for i, code := range codes {
			norm[i] = Code{Prefix: strings.ToUpper(strings.ReplaceAll(code.Prefix, ".", "")), Version: code.Version}
		}
		out[normalizeKey(name)] = norm
	}
	return out
}

// normalizeKey lower-cases a lookup name and folds spaces and dashes to underscores.
func normalizeKey(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(name)
}

func lowerMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ToLower(k)] = strings.ToLower(v)
	}
	return out
}

func lowerAll(items []string) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = strings.ToLower(it)
	}
	return out
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[strings.ToLower(it)] = true
	}
	return set
}
