// Package gpkg writes and reads single-layer OGC GeoPackage files, the vector
// format used at every stage boundary of the pipeline.
package gpkg

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	_ "modernc.org/sqlite"
)

// Geometry types accepted by Layer.GeomType.
const (
	GeomPoint        = "POINT"
	GeomMultiPolygon = "MULTIPOLYGON"
)

// Column types accepted by Column.Type.
const (
	TypeText    = "TEXT"
	TypeInteger = "INTEGER"
	TypeReal    = "REAL"
)

const (
	applicationID = 0x47504B47 // "GPKG"
	userVersion   = 10300
	geomColumn    = "geom"
)

// Column is one attribute column of a feature table.
type Column struct {
	Name string
	Type string
}

// Layer describes a feature table.
type Layer struct {
	Name     string
	GeomType string
	SRSID    int // default 4326
	Columns  []Column
}

// Feature is one row: an optional geometry plus values matching Layer.Columns.
type Feature struct {
	Geom   geom.T
	Values []any
}

const coreSchema = `
CREATE TABLE gpkg_spatial_ref_sys (
	srs_name                 TEXT    NOT NULL,
	srs_id                   INTEGER NOT NULL PRIMARY KEY,
	organization             TEXT    NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition               TEXT    NOT NULL,
	description              TEXT
);

CREATE TABLE gpkg_contents (
	table_name  TEXT     NOT NULL PRIMARY KEY,
	data_type   TEXT     NOT NULL,
	identifier  TEXT     UNIQUE,
	description TEXT     DEFAULT '',
	last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	min_x       DOUBLE,
	min_y       DOUBLE,
	max_x       DOUBLE,
	max_y       DOUBLE,
	srs_id      INTEGER,
	CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);

CREATE TABLE gpkg_geometry_columns (
	table_name         TEXT    NOT NULL,
	column_name        TEXT    NOT NULL,
	geometry_type_name TEXT    NOT NULL,
	srs_id             INTEGER NOT NULL,
	z                  TINYINT NOT NULL,
	m                  TINYINT NOT NULL,
	CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
	CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
	CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);

INSERT INTO gpkg_spatial_ref_sys VALUES
	('Undefined cartesian SRS', -1, 'NONE', -1, 'undefined', 'undefined cartesian coordinate reference system'),
	('Undefined geographic SRS', 0, 'NONE', 0, 'undefined', 'undefined geographic coordinate reference system'),
	('WGS 84 geodetic', 4326, 'EPSG', 4326,
	 'GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]',
	 'longitude/latitude coordinates in decimal degrees on the WGS 84 spheroid');
`

// Write creates path as a new GeoPackage holding one feature layer. An
// existing file at path is replaced.
func Write(ctx context.Context, path string, layer Layer, features []Feature) error {
	if err := validateLayer(layer); err != nil {
		return err
	}
	if layer.SRSID == 0 {
		layer.SRSID = 4326
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "gpkg: create parent directory")
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "gpkg: remove existing %s", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return eris.Wrap(err, "gpkg: open")
	}
	defer db.Close() //nolint:errcheck

	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA application_id = %d", applicationID),
		fmt.Sprintf("PRAGMA user_version = %d", userVersion),
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return eris.Wrapf(err, "gpkg: exec %s", pragma)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "gpkg: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, coreSchema); err != nil {
		return eris.Wrap(err, "gpkg: create core tables")
	}

	cols := []string{"fid INTEGER PRIMARY KEY AUTOINCREMENT", quoteIdent(geomColumn) + " " + layer.GeomType}
	for _, c := range layer.Columns {
		cols = append(cols, quoteIdent(c.Name)+" "+c.Type)
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(layer.Name), strings.Join(cols, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return eris.Wrapf(err, "gpkg: create table %s", layer.Name)
	}

	names := []string{quoteIdent(geomColumn)}
	marks := []string{"?"}
	for _, c := range layer.Columns {
		names = append(names, quoteIdent(c.Name))
		marks = append(marks, "?")
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(layer.Name), strings.Join(names, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return eris.Wrap(err, "gpkg: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	var ext extent
	args := make([]any, len(layer.Columns)+1)
	for i, f := range features {
		if len(f.Values) != len(layer.Columns) {
			return eris.Errorf("gpkg: feature %d has %d values, layer %s has %d columns",
				i, len(f.Values), layer.Name, len(layer.Columns))
		}
		args[0] = nil
		if f.Geom != nil {
			blob, err := EncodeGeometry(f.Geom, layer.SRSID)
			if err != nil {
				return eris.Wrapf(err, "gpkg: encode feature %d", i)
			}
			args[0] = blob
			ext.add(f.Geom)
		}
		copy(args[1:], f.Values)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "gpkg: insert feature %d", i)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, min_x, min_y, max_x, max_y, srs_id)
		 VALUES (?, 'features', ?, ?, ?, ?, ?, ?)`,
		layer.Name, layer.Name, ext.val(0), ext.val(1), ext.val(2), ext.val(3), layer.SRSID,
	); err != nil {
		return eris.Wrap(err, "gpkg: register contents")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_geometry_columns VALUES (?, ?, ?, ?, 0, 0)`,
		layer.Name, geomColumn, layer.GeomType, layer.SRSID,
	); err != nil {
		return eris.Wrap(err, "gpkg: register geometry column")
	}

	return eris.Wrap(tx.Commit(), "gpkg: commit")
}

// Read loads the named feature layer. An empty name reads the first feature
// layer registered in gpkg_contents.
func Read(ctx context.Context, path, name string) (Layer, []Feature, error) {
	if _, err := os.Stat(path); err != nil {
		return Layer{}, nil, eris.Wrapf(err, "gpkg: stat %s", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return Layer{}, nil, eris.Wrap(err, "gpkg: open")
	}
	defer db.Close() //nolint:errcheck

	layer := Layer{Name: name}
	q := `SELECT g.table_name, g.column_name, g.geometry_type_name, g.srs_id
		FROM gpkg_geometry_columns g JOIN gpkg_contents c ON c.table_name = g.table_name
		WHERE c.data_type = 'features' AND (? = '' OR g.table_name = ?)
		ORDER BY g.table_name LIMIT 1`
	var geomCol string
	if err := db.QueryRowContext(ctx, q, name, name).Scan(&layer.Name, &geomCol, &layer.GeomType, &layer.SRSID); err != nil {
		if err == sql.ErrNoRows {
			return Layer{}, nil, eris.Errorf("gpkg: layer %q not found in %s", name, path)
		}
		return Layer{}, nil, eris.Wrap(err, "gpkg: read geometry columns")
	}

	info, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(layer.Name)))
	if err != nil {
		return Layer{}, nil, eris.Wrap(err, "gpkg: table info")
	}
	for info.Next() {
		var (
			cid       int
			colName   string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := info.Scan(&cid, &colName, &colType, &notNull, &dfltValue, &pk); err != nil {
			info.Close() //nolint:errcheck
			return Layer{}, nil, eris.Wrap(err, "gpkg: scan table info")
		}
		if pk == 1 || colName == geomCol {
			continue
		}
		layer.Columns = append(layer.Columns, Column{Name: colName, Type: strings.ToUpper(colType)})
	}
	if err := info.Close(); err != nil {
		return Layer{}, nil, eris.Wrap(err, "gpkg: close table info")
	}

	names := []string{quoteIdent(geomCol)}
	for _, c := range layer.Columns {
		names = append(names, quoteIdent(c.Name))
	}
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY fid",
		strings.Join(names, ", "), quoteIdent(layer.Name)))
	if err != nil {
		return Layer{}, nil, eris.Wrapf(err, "gpkg: select %s", layer.Name)
	}
	defer rows.Close() //nolint:errcheck

	var features []Feature
	for rows.Next() {
		dest := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Layer{}, nil, eris.Wrap(err, "gpkg: scan feature")
		}
		f := Feature{Values: dest[1:]}
		if blob, ok := dest[0].([]byte); ok && len(blob) > 0 {
			g, err := DecodeGeometry(blob)
			if err != nil {
				return Layer{}, nil, eris.Wrapf(err, "gpkg: decode feature %d", len(features))
			}
			f.Geom = g
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return Layer{}, nil, eris.Wrap(err, "gpkg: iterate features")
	}

	return layer, features, nil
}

func validateLayer(layer Layer) error {
	if layer.Name == "" {
		return eris.New("gpkg: layer name is required")
	}
	switch layer.GeomType {
	case GeomPoint, GeomMultiPolygon:
	default:
		return eris.Errorf("gpkg: unsupported geometry type %q", layer.GeomType)
	}
	seen := map[string]bool{"fid": true, geomColumn: true}
	for _, c := range layer.Columns {
		switch c.Type {
		case TypeText, TypeInteger, TypeReal:
		default:
			return eris.Errorf("gpkg: column %q has unsupported type %q", c.Name, c.Type)
		}
		key := strings.ToLower(c.Name)
		if seen[key] {
			return eris.Errorf("gpkg: duplicate column %q", c.Name)
		}
		seen[key] = true
	}
	return nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// extent accumulates the bounding box of written geometries.
type extent struct {
	b *geom.Bounds
}

func (e *extent) add(g geom.T) {
	if e.b == nil {
		e.b = geom.NewBounds(geom.XY)
	}
	e.b.Extend(g)
}

// val returns min_x, min_y, max_x, max_y by index, or nil when empty.
func (e *extent) val(i int) any {
	if e.b == nil || e.b.IsEmpty() {
		return nil
	}
	switch i {
	case 0:
		return e.b.Min(0)
	case 1:
		return e.b.Min(1)
	case 2:
		return e.b.Max(0)
	default:
		return e.b.Max(1)
	}
}
