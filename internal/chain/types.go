package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const timeLayout = "2006-01-02T15:04:05"

// Int64 decodes integers the node sends either as JSON numbers or strings
type Int64 int64

func (i *Int64) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*i = 0
		return nil
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid integer %q: %w", data, err)
	}
	*i = Int64(v)
	return nil
}

// Time is a node timestamp without zone, always UTC
type Time struct {
	time.Time
}

func (t *Time) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(timeLayout))
}

// Asset is an amount with a precision and a symbol, e.g. "0.000 STEEM"
type Asset struct {
	Amount    decimal.Decimal
	Precision int32
	Symbol    string
}

// ParseAsset parses the node's "<amount> <SYMBOL>" notation
func ParseAsset(s string) (Asset, error) {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return Asset{}, fmt.Errorf("invalid asset %q", s)
	}
	amount, err := decimal.NewFromString(parts[0])
	if err != nil {
		return Asset{}, fmt.Errorf("invalid asset amount %q: %w", s, err)
	}
	var precision int32
	if dot := strings.IndexByte(parts[0], '.'); dot >= 0 {
		precision = int32(len(parts[0]) - dot - 1)
	}
	return Asset{Amount: amount, Precision: precision, Symbol: parts[1]}, nil
}

// MustParseAsset is ParseAsset for literals
func MustParseAsset(s string) Asset {
	a, err := ParseAsset(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Satoshis returns the amount in the asset's smallest unit
func (a Asset) Satoshis() int64 {
	return a.Amount.Shift(a.Precision).IntPart()
}

func (a Asset) String() string {
	return a.Amount.StringFixed(a.Precision) + " " + a.Symbol
}

func (a Asset) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Asset) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAsset(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Account is the subset of the on-chain account object this tool reads
type Account struct {
	Name                   string   `json:"name"`
	Reputation             Int64    `json:"reputation"`
	WitnessVotes           []string `json:"witness_votes"`
	PendingClaimedAccounts Int64    `json:"pending_claimed_accounts"`
}

// VotesForWitness reports whether the account votes for witness
func (a *Account) VotesForWitness(witness string) bool {
	for _, w := range a.WitnessVotes {
		if w == witness {
			return true
		}
	}
	return false
}

// ReputationScore converts the raw reputation into the familiar 25-based score
func (a *Account) ReputationScore() float64 {
	return ReputationScore(int64(a.Reputation))
}

// ReputationScore converts a raw reputation value to the displayed score
func ReputationScore(raw int64) float64 {
	if raw == 0 {
		return 25
	}
	neg := raw < 0
	score := math.Log10(math.Abs(float64(raw))) - 9
	if score < 0 {
		score = 0
	}
	if neg {
		score = -score
	}
	return score*9 + 25
}

// RCInfo is a resource credit snapshot with regeneration applied
type RCInfo struct {
	Account            string
	CurrentMana        int64
	MaxMana            int64
	CurrentManaPercent float64
}

// ManaMM returns the current mana in millions
func (r *RCInfo) ManaMM() float64 {
	return Millions(r.CurrentMana)
}

// Millions scales raw RC units to the "MM" unit operators talk in
func Millions(rc int64) float64 {
	return float64(rc) / 1_000_000
}

type rcAccount struct {
	Account   string `json:"account"`
	RCManabar struct {
		CurrentMana    Int64 `json:"current_mana"`
		LastUpdateTime Int64 `json:"last_update_time"`
	} `json:"rc_manabar"`
	MaxRC Int64 `json:"max_rc"`
}

// manaAt regenerates the manabar linearly over the regeneration window
func (a *rcAccount) manaAt(now time.Time) RCInfo {
	maxMana := int64(a.MaxRC)
	elapsed := now.Unix() - int64(a.RCManabar.LastUpdateTime)
	if elapsed < 0 {
		elapsed = 0
	}
	current := int64(a.RCManabar.CurrentMana)
	if maxMana > 0 {
		regenerated := float64(maxMana) * float64(elapsed) / rcRegenerationSeconds
		current = int64(math.Min(float64(current)+regenerated, float64(maxMana)))
	}
	info := RCInfo{
		Account:     a.Account,
		CurrentMana: current,
		MaxMana:     maxMana,
	}
	if maxMana > 0 {
		info.CurrentManaPercent = float64(current) * 100 / float64(maxMana)
	}
	return info
}

// DynamicGlobalProperties is the subset of chain state needed to build transactions
type DynamicGlobalProperties struct {
	HeadBlockNumber    uint32 `json:"head_block_number"`
	HeadBlockID        string `json:"head_block_id"`
	Time               Time   `json:"time"`
	TotalVestingShares Asset  `json:"total_vesting_shares"`
}
