// Package provision implements the provisioning database lookup: given
// a SIM's MCC/MNC (and optionally its service provider name), it
// returns the Primary Context templates a fresh or factory-reset SIM
// should be seeded with.
package provision

import (
	"fmt"
	"os"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gopkg.in/yaml.v3"

	"github.com/rs/zerolog"

	"github.com/ofono-connman/connmand/common"
	"github.com/ofono-connman/connmand/connmgr"
	"github.com/ofono-connman/connmand/logging"
)

// Template is one seeded Primary Context row, keyed by the carrier
// identity it applies to.
type Template struct {
	ID                   uint   `gorm:"primaryKey"`
	MCC                  string `gorm:"index:idx_carrier"`
	MNC                  string `gorm:"index:idx_carrier"`
	SPN                  string `gorm:"index:idx_carrier"` // empty matches any SPN
	Name                 string
	Type                 string
	Protocol             string
	AccessPointName      string
	Username             string
	Password             string
	AuthenticationMethod string
	MessageProxy         string
	MessageCenter        string
}

// seedEntry is the YAML shape operators ship provisioning data in
//; translated into Template rows by SeedFromYAML.
type seedEntry struct {
	MCC                  string `yaml:"mcc"`
	MNC                  string `yaml:"mnc"`
	SPN                  string `yaml:"spn"`
	Name                 string `yaml:"name"`
	Type                 string `yaml:"type"`
	Protocol             string `yaml:"protocol"`
	AccessPointName      string `yaml:"apn"`
	Username             string `yaml:"username"`
	Password             string `yaml:"password"`
	AuthenticationMethod string `yaml:"auth"`
	MessageProxy         string `yaml:"message_proxy"`
	MessageCenter        string `yaml:"message_center"`
}

// DB wraps a gorm.DB against the provisioning SQLite file.
type DB struct {
	gdb *gorm.DB
	log zerolog.Logger
}

// Open connects to (creating if absent) the provisioning database at
// path, running the schema migration.
func Open(path string) (*DB, error) {
	dialector := sqlite.Open(path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	gdb, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("provision: open: %w", err)
	}
	if err := gdb.AutoMigrate(&Template{}); err != nil {
		return nil, fmt.Errorf("provision: migrate: %w", err)
	}
	return &DB{gdb: gdb, log: logging.For("provision")}, nil
}

// SeedFromYAML loads seed entries from a YAML file and upserts them
// into the database, matched on (mcc, mnc, spn, type, apn).
func (d *DB) SeedFromYAML(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("provision: read seed file: %w", err)
	}
	var entries []seedEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return 0, fmt.Errorf("provision: parse seed file: %w", err)
	}

	n := 0
	for _, e := range entries {
		t := Template{
			MCC: e.MCC, MNC: e.MNC, SPN: e.SPN,
			Name:                 e.Name,
			Type:                 e.Type,
			Protocol:             e.Protocol,
			AccessPointName:      e.AccessPointName,
			Username:             e.Username,
			Password:             e.Password,
			AuthenticationMethod: e.AuthenticationMethod,
			MessageProxy:         e.MessageProxy,
			MessageCenter:        e.MessageCenter,
		}
		if err := d.upsert(&t); err != nil {
			d.log.Warn().Err(err).Str("apn", e.AccessPointName).Msg("failed seeding template")
			continue
		}
		n++
	}
	return n, nil
}

func (d *DB) upsert(t *Template) error {
	var existing Template
	err := d.gdb.Where("mcc = ? AND mnc = ? AND spn = ? AND type = ? AND access_point_name = ?",
		t.MCC, t.MNC, t.SPN, t.Type, t.AccessPointName).First(&existing).Error
	if err == nil {
		t.ID = existing.ID
		return d.gdb.Save(t).Error
	}
	if err == gorm.ErrRecordNotFound {
		return d.gdb.Create(t).Error
	}
	return err
}

// Lookup implements connmgr.Provisioner: an exact (mcc, mnc, spn) match
// wins, otherwise an (mcc, mnc, "") carrier-wide template, matching the
// original's SPN-then-carrier provisioning fallback.
func (d *DB) Lookup(mcc, mnc, spn string) ([]connmgr.ContextRecord, error) {
	var rows []Template
	if spn != "" {
		if err := d.gdb.Where("mcc = ? AND mnc = ? AND spn = ?", mcc, mnc, spn).Find(&rows).Error; err != nil {
			return nil, err
		}
	}
	if len(rows) == 0 {
		if err := d.gdb.Where("mcc = ? AND mnc = ? AND spn = ?", mcc, mnc, "").Find(&rows).Error; err != nil {
			return nil, err
		}
	}

	out := make([]connmgr.ContextRecord, 0, len(rows))
	for _, r := range rows {
		typ, _ := common.ParseContextType(r.Type)
		proto, _ := common.ParseProto(r.Protocol)
		auth, _ := common.ParseAuthMethod(r.AuthenticationMethod)
		out = append(out, connmgr.ContextRecord{
			Name:                 r.Name,
			Type:                 typ,
			Protocol:             proto,
			AccessPointName:      r.AccessPointName,
			Username:             r.Username,
			Password:             r.Password,
			AuthenticationMethod: auth,
			MessageProxy:         r.MessageProxy,
			MessageCenter:        r.MessageCenter,
		})
	}
	return out, nil
}

// Close releases the underlying database connection.
func (d *DB) Close() error {
	sqlDB, err := d.gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
