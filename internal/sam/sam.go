// Package sam enumerates local user accounts from an offline SAM hive.
// It decodes the unencrypted V and F account structures (names, RIDs,
// flags, logon timestamps) and derives the SYSTEM bootkey to confirm
// the SYSTEM/SAM hive pair belongs together. No password hashes are
// decrypted.
package sam

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/forenlab/regtriage/internal/artifacts"
	"github.com/forenlab/regtriage/internal/regio"
)

// Account is one local user account from the SAM.
type Account struct {
	RID             uint32    `json:"rid"`
	Name            string    `json:"name"`
	FullName        string    `json:"full_name,omitempty"`
	Comment         string    `json:"comment,omitempty"`
	Flags           []string  `json:"flags,omitempty"`
	Disabled        bool      `json:"disabled"`
	LastLogon       time.Time `json:"last_logon,omitzero"`
	PasswordLastSet time.Time `json:"password_last_set,omitzero"`
	LastFailedLogon time.Time `json:"last_failed_logon,omitzero"`
	LogonCount      uint16    `json:"logon_count"`
	FailedCount     uint16    `json:"failed_logon_count"`
}

// F structure layout within SAM\Domains\Account\Users\<RID>\F.
const (
	fLastLogonOff   = 0x08
	fPwdLastSetOff  = 0x18
	fLastFailedOff  = 0x28
	fRIDOff         = 0x30
	fFlagsOff       = 0x38
	fFailedCountOff = 0x40
	fLogonCountOff  = 0x42
	fMinLen         = 0x44
)

// V structure: (offset, length) pairs relative to 0xCC.
const (
	vBase        = 0xCC
	vNameOff     = 0x0C
	vFullNameOff = 0x18
	vCommentOff  = 0x24
)

// ACB account control bits stored in the F structure.
var acbFlags = []struct {
	bit  uint16
	name string
}{
	{0x0001, "disabled"},
	{0x0002, "homedir_required"},
	{0x0004, "password_not_required"},
	{0x0008, "temp_duplicate"},
	{0x0010, "normal_account"},
	{0x0040, "interdomain_trust"},
	{0x0080, "workstation_trust"},
	{0x0100, "server_trust"},
	{0x0200, "password_never_expires"},
	{0x0400, "auto_locked"},
}

// Accounts parses all user accounts from an open SAM hive.
func Accounts(hive regio.Hive) ([]Account, error) {
	const usersPath = `SAM\Domains\Account\Users`
	key, err := hive.Open(usersPath)
	if err != nil {
		return nil, fmt.Errorf("sam: %w", err)
	}
	rids, err := key.SubkeyNames()
	key.Close()
	if err != nil {
		return nil, fmt.Errorf("sam: enumerate users: %w", err)
	}

	var accounts []Account
	for _, ridName := range rids {
		// The Names subkey maps usernames to RIDs; the hex-named keys
		// carry the actual records.
		if _, err := strconv.ParseUint(ridName, 16, 32); err != nil {
			continue
		}
		userKey, err := hive.Open(usersPath + `\` + ridName)
		if err != nil {
			continue
		}
		acct, err := parseAccount(userKey)
		userKey.Close()
		if err != nil {
			continue
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

func parseAccount(key regio.Key) (Account, error) {
	var acct Account

	fv, err := key.Value("F")
	if err != nil {
		return acct, err
	}
	f, err := fv.Data()
	if err != nil || len(f) < fMinLen {
		return acct, fmt.Errorf("sam: short F structure")
	}
	acct.RID = binary.LittleEndian.Uint32(f[fRIDOff : fRIDOff+4])
	acct.LastLogon = regio.FiletimeBytes(f[fLastLogonOff : fLastLogonOff+8])
	acct.PasswordLastSet = regio.FiletimeBytes(f[fPwdLastSetOff : fPwdLastSetOff+8])
	acct.LastFailedLogon = regio.FiletimeBytes(f[fLastFailedOff : fLastFailedOff+8])
	acct.FailedCount = binary.LittleEndian.Uint16(f[fFailedCountOff : fFailedCountOff+2])
	acct.LogonCount = binary.LittleEndian.Uint16(f[fLogonCountOff : fLogonCountOff+2])

	flags := binary.LittleEndian.Uint16(f[fFlagsOff : fFlagsOff+2])
	for _, fl := range acbFlags {
		if flags&fl.bit != 0 {
			acct.Flags = append(acct.Flags, fl.name)
		}
	}
	acct.Disabled = flags&0x0001 != 0

	vv, err := key.Value("V")
	if err != nil {
		return acct, err
	}
	v, err := vv.Data()
	if err != nil {
		return acct, err
	}
	acct.Name = vString(v, vNameOff)
	acct.FullName = vString(v, vFullNameOff)
	acct.Comment = vString(v, vCommentOff)
	if acct.Name == "" {
		return acct, fmt.Errorf("sam: unnamed account record")
	}
	return acct, nil
}

// vString extracts one UTF-16LE string attribute from the V structure
// given the offset of its (offset, length) descriptor pair.
func vString(v []byte, descOff int) string {
	if len(v) < descOff+8 {
		return ""
	}
	off := int(binary.LittleEndian.Uint32(v[descOff:descOff+4])) + vBase
	length := int(binary.LittleEndian.Uint32(v[descOff+4 : descOff+8]))
	if length <= 0 || off < 0 || off+length > len(v) {
		return ""
	}
	return strings.TrimRight(regio.DecodeUTF16(v[off:off+length]), "\x00")
}

// bootKeyPermutation reorders the hex-decoded class-name bytes into the
// actual bootkey.
var bootKeyPermutation = []int{8, 5, 4, 2, 11, 9, 13, 3, 0, 6, 1, 12, 14, 10, 15, 7}

// bootKeyClasses are the Lsa subkeys whose class names hold the
// scrambled key material.
var bootKeyClasses = []string{"JD", "Skew1", "GBG", "Data"}

// BootKey derives the 16-byte bootkey from an offline SYSTEM hive.
func BootKey(system regio.Hive) ([]byte, error) {
	controlSet := "ControlSet001"
	if key, err := system.Open(`Select`); err == nil {
		if v, err := key.Value("Current"); err == nil && v.Uint64() > 0 {
			controlSet = fmt.Sprintf("ControlSet%03d", v.Uint64())
		}
		key.Close()
	}

	var hexKey strings.Builder
	for _, name := range bootKeyClasses {
		key, err := system.Open(controlSet + `\Control\Lsa\` + name)
		if err != nil {
			return nil, fmt.Errorf("bootkey: %w", err)
		}
		class := key.Class()
		key.Close()
		if class == nil {
			return nil, fmt.Errorf("bootkey: %s has no class data", name)
		}
		hexKey.WriteString(strings.ReplaceAll(regio.DecodeUTF16(class), "\x00", ""))
	}

	scrambled, err := hex.DecodeString(hexKey.String())
	if err != nil || len(scrambled) != 16 {
		return nil, fmt.Errorf("bootkey: bad class data: %w", err)
	}
	bootKey := make([]byte, 16)
	for i, j := range bootKeyPermutation {
		bootKey[i] = scrambled[j]
	}
	return bootKey, nil
}

// BootKeyFingerprint returns a short SHA-256 fingerprint of the bootkey
// for the report; the key itself never leaves the process.
func BootKeyFingerprint(bootKey []byte) string {
	sum := sha256.Sum256(bootKey)
	return hex.EncodeToString(sum[:8])
}

// ToArtifacts converts accounts into normalized artifact records.
// LastLogon is used as the artifact timestamp so accounts land at a
// meaningful point on the timeline.
func ToArtifacts(accounts []Account) []artifacts.Artifact {
	var arts []artifacts.Artifact
	for _, a := range accounts {
		fields := map[string]any{
			"rid":         a.RID,
			"logon_count": a.LogonCount,
			"disabled":    a.Disabled,
		}
		if a.FullName != "" {
			fields["full_name"] = a.FullName
		}
		if a.Comment != "" {
			fields["comment"] = a.Comment
		}
		if len(a.Flags) > 0 {
			fields["flags"] = a.Flags
		}
		if !a.PasswordLastSet.IsZero() {
			fields["password_last_set"] = a.PasswordLastSet
		}
		if a.FailedCount > 0 {
			fields["failed_logon_count"] = a.FailedCount
		}
		arts = append(arts, artifacts.Artifact{
			Type:      "sam_account",
			Source:    "sam",
			Path:      `SAM\Domains\Account\Users`,
			Name:      a.Name,
			Value:     a.Name,
			Timestamp: a.LastLogon,
			Fields:    fields,
		})
	}
	return arts
}
