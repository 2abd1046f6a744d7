package repository

import (
	"context"
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/hitoshi/rollcall/internal/model"
)

// redemptionKey は出席記録の一意キー (student_id, lecture_id)。
type redemptionKey struct {
	studentID string
	lectureID string
}

// MemoryStore はプロセス内メモリを使用するストア実装。
// 単一プロセスでの開発・テスト用途。全リポジトリインターフェースとTransactorを満たす。
// 出席登録の単位はmuを保持したまま実行されるため、同一学生・同一講義の同時登録は直列化される。
type MemoryStore struct {
	mu sync.Mutex

	identities      map[string]*model.Identity
	identitiesByUID map[string]string
	courses         map[string]*model.Course
	lectures        map[string]*model.Lecture
	enrollments     map[redemptionKey]*model.Enrollment // lectureIDにはcourseIDを格納する
	credentials     map[string]*model.Credential        // key: token
	redemptions     map[redemptionKey]*model.Redemption
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identities:      make(map[string]*model.Identity),
		identitiesByUID: make(map[string]string),
		courses:         make(map[string]*model.Course),
		lectures:        make(map[string]*model.Lecture),
		enrollments:     make(map[redemptionKey]*model.Enrollment),
		credentials:     make(map[string]*model.Credential),
		redemptions:     make(map[redemptionKey]*model.Redemption),
	}
}

// Identities はIdentityRepositoryとしてのビューを返す。
func (s *MemoryStore) Identities() IdentityRepository { return memoryIdentities{s} }

// Courses はCourseRepositoryとしてのビューを返す。
func (s *MemoryStore) Courses() CourseRepository { return memoryCourses{s} }

// Lectures はLectureRepositoryとしてのビューを返す。
func (s *MemoryStore) Lectures() LectureRepository { return memoryLectures{s} }

// Enrollments はEnrollmentRepositoryとしてのビューを返す。
func (s *MemoryStore) Enrollments() EnrollmentRepository { return memoryEnrollments{s} }

// Credentials はCredentialRepositoryとしてのビューを返す。
func (s *MemoryStore) Credentials() CredentialRepository { return memoryCredentials{s} }

// RedemptionCount は保存済みの出席記録数を返す。テスト用。
func (s *MemoryStore) RedemptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.redemptions)
}

// WithinTx はmuを保持したままfnを実行する。
// 書き込みはトランザクションローカルに保留し、fnが成功した場合のみ反映する。
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx RedemptionTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryRedemptionTx{store: s, pending: make(map[redemptionKey]*model.Redemption)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for k, r := range tx.pending {
		s.redemptions[k] = r
	}
	return nil
}

// --- トランザクション内操作（呼び出し側がmuを保持している） ---

type memoryRedemptionTx struct {
	store   *MemoryStore
	pending map[redemptionKey]*model.Redemption
}

func (tx *memoryRedemptionTx) FindCredentialByToken(_ context.Context, token string) (*model.Credential, error) {
	c, ok := tx.store.credentials[token]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (tx *memoryRedemptionTx) FindLecture(_ context.Context, lectureID string) (*model.Lecture, error) {
	return tx.store.lectureLocked(lectureID), nil
}

func (tx *memoryRedemptionTx) IsEnrolled(_ context.Context, studentID, courseID string) (bool, error) {
	_, ok := tx.store.enrollments[redemptionKey{studentID: studentID, lectureID: courseID}]
	return ok, nil
}

func (tx *memoryRedemptionTx) InsertRedemption(_ context.Context, r *model.Redemption) error {
	key := redemptionKey{studentID: r.StudentID, lectureID: r.LectureID}
	if _, ok := tx.store.redemptions[key]; ok {
		return fmt.Errorf("attendance %s/%s: %w", r.StudentID, r.LectureID, ErrDuplicate)
	}
	if _, ok := tx.pending[key]; ok {
		return fmt.Errorf("attendance %s/%s: %w", r.StudentID, r.LectureID, ErrDuplicate)
	}
	cp := *r
	tx.pending[key] = &cp
	return nil
}

// lectureLocked は講義を担当講師ID付きで返す。muを保持して呼び出すこと。
func (s *MemoryStore) lectureLocked(id string) *model.Lecture {
	l, ok := s.lectures[id]
	if !ok {
		return nil
	}
	cp := *l
	if c, ok := s.courses[l.CourseID]; ok {
		cp.OwnerID = c.LecturerID
	}
	return &cp
}

// --- リポジトリビュー ---

type memoryIdentities struct{ s *MemoryStore }

func (m memoryIdentities) FindByID(_ context.Context, id string) (*model.Identity, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	i, ok := m.s.identities[id]
	if !ok {
		return nil, nil
	}
	cp := *i
	return &cp, nil
}

func (m memoryIdentities) FindByUniversityID(ctx context.Context, universityID string) (*model.Identity, error) {
	m.s.mu.Lock()
	id, ok := m.s.identitiesByUID[universityID]
	m.s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return m.FindByID(ctx, id)
}

func (m memoryIdentities) Create(_ context.Context, identity *model.Identity) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.identitiesByUID[identity.UniversityID]; ok {
		return fmt.Errorf("university_id %s: %w", identity.UniversityID, ErrDuplicate)
	}
	cp := *identity
	m.s.identities[identity.ID] = &cp
	m.s.identitiesByUID[identity.UniversityID] = identity.ID
	return nil
}

type memoryCourses struct{ s *MemoryStore }

func (m memoryCourses) FindByID(_ context.Context, id string) (*model.Course, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.courses[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m memoryCourses) Create(_ context.Context, course *model.Course) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.identities[course.LecturerID]; !ok {
		return fmt.Errorf("lecturer not found: %s", course.LecturerID)
	}
	cp := *course
	m.s.courses[course.ID] = &cp
	return nil
}

func (m memoryCourses) ListByLecturer(_ context.Context, lecturerID string) ([]*model.Course, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.s.coursesLocked(func(c *model.Course) bool { return c.LecturerID == lecturerID }), nil
}

func (m memoryCourses) ListByStudent(_ context.Context, studentID string) ([]*model.Course, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.s.coursesLocked(func(c *model.Course) bool {
		_, ok := m.s.enrollments[redemptionKey{studentID: studentID, lectureID: c.ID}]
		return ok
	}), nil
}

func (m memoryCourses) ListNotEnrolled(_ context.Context, studentID string) ([]*model.Course, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.s.coursesLocked(func(c *model.Course) bool {
		_, ok := m.s.enrollments[redemptionKey{studentID: studentID, lectureID: c.ID}]
		return !ok
	}), nil
}

// coursesLocked はmatchを満たすコースのコピーをコースコード順で返す。muを保持して呼び出すこと。
func (s *MemoryStore) coursesLocked(match func(*model.Course) bool) []*model.Course {
	out := []*model.Course{}
	for _, c := range s.courses {
		if match(c) {
			cp := *c
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *model.Course) int {
		return cmp.Or(cmp.Compare(a.Code, b.Code), cmp.Compare(a.ID, b.ID))
	})
	return out
}

type memoryLectures struct{ s *MemoryStore }

func (m memoryLectures) FindByID(_ context.Context, id string) (*model.Lecture, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.s.lectureLocked(id), nil
}

func (m memoryLectures) Create(_ context.Context, lecture *model.Lecture) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.courses[lecture.CourseID]; !ok {
		return fmt.Errorf("course not found: %s", lecture.CourseID)
	}
	cp := *lecture
	cp.OwnerID = ""
	m.s.lectures[lecture.ID] = &cp
	return nil
}

// DeleteByID は講義と、それに紐づく出席トークン・出席記録を削除する。
func (m memoryLectures) DeleteByID(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.lectures[id]; !ok {
		return fmt.Errorf("lecture %s: %w", id, ErrNotFound)
	}
	delete(m.s.lectures, id)
	for token, c := range m.s.credentials {
		if c.LectureID == id {
			delete(m.s.credentials, token)
		}
	}
	for k := range m.s.redemptions {
		if k.lectureID == id {
			delete(m.s.redemptions, k)
		}
	}
	return nil
}

func (m memoryLectures) ListByCourse(_ context.Context, courseID string) ([]*model.Lecture, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := []*model.Lecture{}
	for id, l := range m.s.lectures {
		if l.CourseID == courseID {
			out = append(out, m.s.lectureLocked(id))
		}
	}
	slices.SortFunc(out, func(a, b *model.Lecture) int {
		return cmp.Or(b.StartsAt.Compare(a.StartsAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

type memoryEnrollments struct{ s *MemoryStore }

func (m memoryEnrollments) Exists(_ context.Context, studentID, courseID string) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	_, ok := m.s.enrollments[redemptionKey{studentID: studentID, lectureID: courseID}]
	return ok, nil
}

func (m memoryEnrollments) Create(_ context.Context, e *model.Enrollment) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	key := redemptionKey{studentID: e.StudentID, lectureID: e.CourseID}
	if _, ok := m.s.enrollments[key]; ok {
		return fmt.Errorf("enrollment %s/%s: %w", e.StudentID, e.CourseID, ErrDuplicate)
	}
	if _, ok := m.s.courses[e.CourseID]; !ok {
		return fmt.Errorf("course not found: %s", e.CourseID)
	}
	cp := *e
	m.s.enrollments[key] = &cp
	return nil
}

type memoryCredentials struct{ s *MemoryStore }

func (m memoryCredentials) Create(_ context.Context, c *model.Credential) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.credentials[c.Token]; ok {
		return fmt.Errorf("credential token collision: %w", ErrDuplicate)
	}
	if _, ok := m.s.lectures[c.LectureID]; !ok {
		return fmt.Errorf("lecture not found: %s", c.LectureID)
	}
	cp := *c
	m.s.credentials[c.Token] = &cp
	return nil
}

// compile-time interface check
var (
	_ Transactor           = (*MemoryStore)(nil)
	_ IdentityRepository   = memoryIdentities{}
	_ CourseRepository     = memoryCourses{}
	_ LectureRepository    = memoryLectures{}
	_ EnrollmentRepository = memoryEnrollments{}
	_ CredentialRepository = memoryCredentials{}
)
