package repository

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"
)

// ErrStorageUnavailable はデータベースに到達できないことを示す。
// 呼び出し側はerrors.Isで判定し、詳細をクライアントに返さないこと。
var ErrStorageUnavailable = errors.New("storage unavailable")

const (
	pqUniqueViolation   = "23505"
	pqInvalidTextRepr   = "22P02"
	pqClassConnection   = "08"
	pqClassResources    = "53"
	pqClassIntervention = "57"
)

// wrapError はドライバーエラーに操作名を付与し、接続系のエラーをErrStorageUnavailableとして分類する。
func wrapError(op string, err error) error {
	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		class := string(pqErr.Code.Class())
		return class == pqClassConnection || class == pqClassResources || class == pqClassIntervention
	}
	return false
}

// isUniqueViolation は指定した制約名（空の場合は任意）の一意制約違反かどうかを返す。
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != pqUniqueViolation {
		return false
	}
	return constraint == "" || strings.EqualFold(pqErr.Constraint, constraint)
}

// isInvalidText はUUID列などへの不正な文字列入力によるエラーかどうかを返す。
func isInvalidText(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pqInvalidTextRepr
}
