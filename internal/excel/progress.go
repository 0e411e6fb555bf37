package excel

// ProgressReporter は進捗更新用コールバックです。
// done/total は作業単位数で、stage は load / write / completed のいずれかです。
type ProgressReporter func(stage string, done, total int)

func reportProgress(cb ProgressReporter, stage string, done, total int) {
	if cb == nil {
		return
	}
	if done < 0 {
		done = 0
	}
	if total > 0 && done > total {
		done = total
	}
	cb(stage, done, total)
}
