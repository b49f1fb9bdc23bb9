package gamification

import (
	"log/slog"

	"github.com/hitoshi/cinequiz/internal/model"
)

// NormalizeLevel はランク番号またはランク名をランクに変換する。
// 解釈できない値はランク1として扱い、WARNログを出力する。
func NormalizeLevel(v any) model.Rank {
	if r, ok := model.ParseRank(v); ok {
		return r
	}
	slog.Warn("level normalized to default",
		slog.Any("value", v),
		slog.String("level", model.RankNominee.Name()),
	)
	return model.RankNominee
}

// isAbsentLevel は値が未指定として扱われるかどうかを返す。
// 0と空文字列も未指定とみなす。
func isAbsentLevel(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case float64:
		return x == 0
	case int:
		return x == 0
	case int64:
		return x == 0
	case bool:
		return !x
	}
	return false
}
