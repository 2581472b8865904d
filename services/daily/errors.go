package daily

import "goalplay-engagement/pkg/errutil"

var ErrAlreadyClaimed = errutil.BadRequest("daily reward already claimed today", nil, errutil.WithReason(errutil.ReasonAlreadyClaimed))
