package contracts

import "time"

// Stage 정의 (SSOT)
// 진행 알림, 로그, DB row 모두 이 상수를 사용
//
// 실행 흐름:
//   start → task_start(xN) → dependents → synthesis → persistence → complete
//                                                              └→ error

// Stage represents a lifecycle point of one analysis run
type Stage string

const (
	// StageStart 분석 요청 수락
	StageStart Stage = "start"

	// StageTaskStart 독립 태스크 하나가 시작됨 (태스크마다 1회)
	StageTaskStart Stage = "task_start"

	// StageDependents 선행 결과를 주입받는 의존 태스크 단계
	StageDependents Stage = "dependents"

	// StageSynthesis 외부 합성(LLM) 호출
	StageSynthesis Stage = "synthesis"

	// StagePersistence 결과 저장/발행
	StagePersistence Stage = "persistence"

	// StageComplete 정상 종료
	StageComplete Stage = "complete"

	// StageError 실행 실패 (타임아웃, 합성 실패)
	StageError Stage = "error"
)

// String returns the stage name
func (s Stage) String() string {
	return string(s)
}

// IsTerminal reports whether no further events follow this stage
func (s Stage) IsTerminal() bool {
	return s == StageComplete || s == StageError
}

// AllStages returns stages in lifecycle order
func AllStages() []Stage {
	return []Stage{
		StageStart,
		StageTaskStart,
		StageDependents,
		StageSynthesis,
		StagePersistence,
		StageComplete,
		StageError,
	}
}

// ProgressEvent is emitted at fixed lifecycle points of a run.
// Consumers may ignore it; it never influences results.
type ProgressEvent struct {
	RunID           string    `json:"run_id"`
	Stage           Stage     `json:"stage"`
	InstrumentID    string    `json:"instrument_id"`
	ProgressPercent int       `json:"progress_percent"`
	Message         string    `json:"message,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
