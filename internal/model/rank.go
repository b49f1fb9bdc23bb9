package model

import (
	"strconv"
	"strings"
)

// Rank はゲーミフィケーションのランク（1〜6）を表す。
// 数値とランク名は固定の全単射で対応する。
type Rank int

const (
	RankNominee         Rank = 1
	RankAwardWinner     Rank = 2
	RankAcclaimedCritic Rank = 3
	RankFestivalJudge   Rank = 4
	RankAcademyMember   Rank = 5
	RankOscarLegend     Rank = 6
)

// rankDef はランク定義の1行。
type rankDef struct {
	rank      Rank
	name      string
	threshold int64 // この経験値以上で到達する
}

// rankTable は閾値の昇順で並ぶランク表。閾値は狭義単調増加でなければならない。
var rankTable = [...]rankDef{
	{RankNominee, "Nominee", 0},
	{RankAwardWinner, "Award Winner", 500},
	{RankAcclaimedCritic, "Acclaimed Critic", 1500},
	{RankFestivalJudge, "Festival Judge", 3000},
	{RankAcademyMember, "Academy Member", 6000},
	{RankOscarLegend, "Oscar Legend", 10000},
}

// MinRank と MaxRank はランクの範囲。
const (
	MinRank = RankNominee
	MaxRank = RankOscarLegend
)

// Valid はランクが1〜6の範囲にあるかを返す。
func (r Rank) Valid() bool {
	return r >= MinRank && r <= MaxRank
}

// Name はランクの表示名を返す。範囲外の場合は空文字列。
func (r Rank) Name() string {
	if !r.Valid() {
		return ""
	}
	return rankTable[r-1].name
}

// Threshold はランクに到達するために必要な経験値を返す。
func (r Rank) Threshold() int64 {
	if !r.Valid() {
		return 0
	}
	return rankTable[r-1].threshold
}

// Next は次のランクを返す。最上位ランクの場合はfalseを返す。
func (r Rank) Next() (Rank, bool) {
	if !r.Valid() || r == MaxRank {
		return 0, false
	}
	return r + 1, true
}

// String はfmt.Stringerを実装する。
func (r Rank) String() string {
	if name := r.Name(); name != "" {
		return name
	}
	return "Rank(" + strconv.Itoa(int(r)) + ")"
}

// Ranks は全ランクを昇順で返す。
func Ranks() []Rank {
	ranks := make([]Rank, 0, len(rankTable))
	for _, d := range rankTable {
		ranks = append(ranks, d.rank)
	}
	return ranks
}

// RankFromNumber は数値からランクを返す。範囲外の場合はfalseを返す。
func RankFromNumber(n int) (Rank, bool) {
	r := Rank(n)
	if !r.Valid() {
		return 0, false
	}
	return r, true
}

// RankFromName はランク名からランクを返す。前後の空白と大文字小文字は無視する。
func RankFromName(name string) (Rank, bool) {
	name = strings.TrimSpace(name)
	for _, d := range rankTable {
		if strings.EqualFold(d.name, name) {
			return d.rank, true
		}
	}
	return 0, false
}

// ParseRank は数値・数値文字列・ランク名のいずれかからランクを解釈する。
// JSONデコード結果（float64）やDB値（int64, []byte）も受け付ける。
func ParseRank(v any) (Rank, bool) {
	switch x := v.(type) {
	case Rank:
		return x, x.Valid()
	case int:
		return RankFromNumber(x)
	case int32:
		return RankFromNumber(int(x))
	case int64:
		return RankFromNumber(int(x))
	case float64:
		if x != float64(int(x)) {
			return 0, false
		}
		return RankFromNumber(int(x))
	case []byte:
		return ParseRank(string(x))
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.Atoi(s); err == nil {
			return RankFromNumber(n)
		}
		return RankFromName(s)
	default:
		return 0, false
	}
}

// RankForExperience は経験値に対応するランクを返す。
// 閾値が経験値以下であるランクのうち、最も閾値が大きいものを選ぶ。
// 負の経験値はNomineeとして扱う。
func RankForExperience(experience int64) Rank {
	rank := RankNominee
	for _, d := range rankTable {
		if experience < d.threshold {
			break
		}
		rank = d.rank
	}
	return rank
}
