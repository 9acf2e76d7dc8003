// Package settings persists per-IMSI Connection Manager preferences and
// Primary Context definitions, one INI file per SIM
// identity, the way the original keeps a settings file per modem/IMSI
// pair under its storage directory.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/ofono-connman/connmand/common"
	"github.com/ofono-connman/connmand/connmgr"
	"github.com/ofono-connman/connmand/logging"
)

const (
	managerSection = "Settings"
	contextPrefix  = "context"
	// legacyContextPrefix is the group name ofono itself used; read for
	// migration but never written back under this name.
	legacyContextPrefix = "primarycontext"
)

// Store implements connmgr.Persistence backed by one viper instance per
// IMSI, synced to disk after every mutation.
type Store struct {
	mu  sync.Mutex
	dir string
	log zerolog.Logger
}

// NewStore creates a Store rooted at dir,
// creating the directory if necessary.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("settings: create dir: %w", err)
	}
	return &Store{dir: dir, log: logging.For("settings")}, nil
}

func (s *Store) path(imsi string) string {
	return filepath.Join(s.dir, imsi+".ini")
}

func (s *Store) load(imsi string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(s.path(imsi))
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return v, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil
		}
		return nil, err
	}
	return v, nil
}

func (s *Store) sync(v *viper.Viper, imsi string) error {
	if err := v.WriteConfigAs(s.path(imsi)); err != nil {
		s.log.Warn().Err(err).Str("imsi", imsi).Msg("failed syncing settings file")
		return err
	}
	return nil
}

// LoadManagerPrefs implements connmgr.Persistence.
func (s *Store) LoadManagerPrefs(imsi string) (powered, roamingAllowed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.load(imsi)
	if err != nil {
		return true, false, err
	}
	sec := v.Sub(managerSection)
	if sec == nil {
		return true, false, nil
	}
	powered = sec.GetBool("powered")
	roamingAllowed = sec.GetBool("roamingallowed")
	if !sec.IsSet("powered") {
		powered = true
	}
	return powered, roamingAllowed, nil
}

// SaveManagerPrefs implements connmgr.Persistence.
func (s *Store) SaveManagerPrefs(imsi string, powered, roamingAllowed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.load(imsi)
	if err != nil {
		return err
	}
	v.Set(managerSection+".powered", powered)
	v.Set(managerSection+".roamingallowed", roamingAllowed)
	return s.sync(v, imsi)
}

// LoadContexts implements connmgr.Persistence, migrating any legacy
// [primarycontextN] groups it finds to the current [contextN] shape
// in memory (not rewritten until the next SaveContext).
func (s *Store) LoadContexts(imsi string) ([]connmgr.ContextRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.load(imsi)
	if err != nil {
		return nil, err
	}

	ids := map[uint8]string{} // id -> section prefix used on disk
	for _, key := range v.AllKeys() {
		prefix, id, ok := splitSectionKey(key)
		if !ok {
			continue
		}
		if prefix != contextPrefix && prefix != legacyContextPrefix {
			continue
		}
		if _, exists := ids[id]; !exists || prefix == contextPrefix {
			ids[id] = prefix
		}
	}

	var out []connmgr.ContextRecord
	for id, prefix := range ids {
		sec := v.Sub(fmt.Sprintf("%s%d", prefix, id))
		if sec == nil {
			continue
		}
		rec, err := recordFromSection(id, sec)
		if err != nil {
			s.log.Warn().Uint8("id", id).Err(err).Msg("dropping unparseable context group")
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveContext implements connmgr.Persistence, always writing under the
// current [contextN] group name.
func (s *Store) SaveContext(imsi string, rec connmgr.ContextRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.load(imsi)
	if err != nil {
		return err
	}
	group := fmt.Sprintf("%s%d", contextPrefix, rec.ID)
	v.Set(group+".name", rec.Name)
	v.Set(group+".type", rec.Type.String())
	v.Set(group+".protocol", rec.Protocol.String())
	v.Set(group+".accesspointname", rec.AccessPointName)
	v.Set(group+".username", rec.Username)
	v.Set(group+".password", rec.Password)
	v.Set(group+".authenticationmethod", rec.AuthenticationMethod.String())
	v.Set(group+".messageproxy", rec.MessageProxy)
	v.Set(group+".messagecenter", rec.MessageCenter)
	return s.sync(v, imsi)
}

// RemoveContext implements connmgr.Persistence. Viper has no group
// delete, so the INI is rewritten from every key but the removed
// group's.
func (s *Store) RemoveContext(imsi string, id uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.load(imsi)
	if err != nil {
		return err
	}
	group := fmt.Sprintf("%s%d.", contextPrefix, id)
	legacyGroup := fmt.Sprintf("%s%d.", legacyContextPrefix, id)

	fresh := viper.New()
	for _, key := range v.AllKeys() {
		if strings.HasPrefix(key, group) || strings.HasPrefix(key, legacyGroup) {
			continue
		}
		fresh.Set(key, v.Get(key))
	}
	return s.sync(fresh, imsi)
}

// recordFromSection builds a record from a [context*] group, failing if
// any of its enum fields is present and doesn't parse: an unparseable
// group is corrupt and must be dropped at load, not kept with zero-value
// fields. A missing protocol or authenticationmethod defaults to ip or
// chap.
func recordFromSection(id uint8, sec *viper.Viper) (connmgr.ContextRecord, error) {
	typ, ok := common.ParseContextType(sec.GetString("type"))
	if !ok {
		return connmgr.ContextRecord{}, fmt.Errorf("invalid type %q", sec.GetString("type"))
	}
	proto, ok := common.ParseProto(sec.GetString("protocol"))
	if !ok {
		if sec.GetString("protocol") != "" {
			return connmgr.ContextRecord{}, fmt.Errorf("invalid protocol %q", sec.GetString("protocol"))
		}
		proto = common.ProtoIP
	}
	auth, ok := common.ParseAuthMethod(sec.GetString("authenticationmethod"))
	if !ok {
		if sec.GetString("authenticationmethod") != "" {
			return connmgr.ContextRecord{}, fmt.Errorf("invalid authenticationmethod %q", sec.GetString("authenticationmethod"))
		}
		auth = common.AuthCHAP
	}
	return connmgr.ContextRecord{
		ID:                   id,
		Name:                 sec.GetString("name"),
		Type:                 typ,
		Protocol:             proto,
		AccessPointName:      sec.GetString("accesspointname"),
		Username:             sec.GetString("username"),
		Password:             sec.GetString("password"),
		AuthenticationMethod: auth,
		MessageProxy:         sec.GetString("messageproxy"),
		MessageCenter:        sec.GetString("messagecenter"),
	}, nil
}

// splitSectionKey splits a viper dotted key like "context3.apn" into
// ("context", 3, true); non-matching or malformed keys return ok=false.
func splitSectionKey(key string) (prefix string, id uint8, ok bool) {
	dot := strings.IndexByte(key, '.')
	if dot < 0 {
		return "", 0, false
	}
	section := key[:dot]
	for _, p := range []string{legacyContextPrefix, contextPrefix} {
		if strings.HasPrefix(section, p) {
			n, err := strconv.Atoi(strings.TrimPrefix(section, p))
			if err != nil || n <= 0 || n > 255 {
				continue
			}
			return p, uint8(n), true
		}
	}
	return "", 0, false
}
