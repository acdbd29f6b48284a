package result

import (
	"github.com/krew-solutions/whizbang-go/deferred"
	"github.com/krew-solutions/whizbang-go/session"
)

func NewResult(lastInsertId, rowsAffected int64) *DeferredResultImp {
	r := &DeferredResultImp{}
	r.Resolve(lastInsertId, rowsAffected)
	return r
}

func NewDeferredResult() *DeferredResultImp {
	return &DeferredResultImp{}
}

type DeferredResultImp struct {
	ResultImp
	deferred.DeferredImp[session.Result]
}

func (r *DeferredResultImp) Resolve(lastInsertId, rowsAffected int64) {
	r.ResultImp = ResultImp{lastInsertId, rowsAffected}
	r.DeferredImp.Resolve(r)
}
