package server

import (
	"database/sql"
	"errors"
	"html/template"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"microblog/internal/feed"
	"microblog/internal/follow"
	"microblog/internal/models"
	"microblog/internal/posts"
)

const maxUploadBytes = 10 << 20

type Server struct {
	DB         *sql.DB
	CookieName string

	tmpl      map[string]*template.Template
	staticDir string
	mediaDir  string
	cache     *pageCache
}

type Options struct {
	TemplateDir string
	StaticDir   string
	MediaDir    string
	// IndexCacheTTL bounds how stale the anonymous index page may be.
	// Zero disables the cache.
	IndexCacheTTL time.Duration
}

func New(db *sql.DB, opts Options) (*Server, error) {
	templates := map[string]*template.Template{}
	layout := filepath.Join(opts.TemplateDir, "layout.html")
	pages, err := filepath.Glob(filepath.Join(opts.TemplateDir, "*.html"))
	if err != nil {
		return nil, err
	}
	for _, page := range pages {
		if filepath.Base(page) == "layout.html" {
			continue
		}
		t, err := template.ParseFiles(layout, page)
		if err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(filepath.Base(page), ".html")
		templates[name] = t
	}
	return &Server{
		DB:         db,
		CookieName: "session_id",
		tmpl:       templates,
		staticDir:  opts.StaticDir,
		mediaDir:   opts.MediaDir,
		cache:      newPageCache(opts.IndexCacheTTL),
	}, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", s.cached(s.handleIndex))
	mux.HandleFunc("/group/{slug}", s.handleGroup)
	mux.HandleFunc("/profile/{username}", s.handleProfile)
	mux.HandleFunc("/profile/{username}/follow", s.requireAuth(s.handleFollow))
	mux.HandleFunc("/profile/{username}/unfollow", s.requireAuth(s.handleUnfollow))
	mux.HandleFunc("/follow", s.requireAuth(s.handleFollowIndex))
	mux.HandleFunc("/posts/{id}", s.handlePostDetail)
	mux.HandleFunc("/posts/{id}/edit", s.requireAuth(s.handleEditPost))
	mux.HandleFunc("/posts/{id}/delete", s.requireAuth(s.handleDeletePost))
	mux.HandleFunc("/posts/{id}/comment", s.requireAuth(s.handleComment))
	mux.HandleFunc("/create", s.requireAuth(s.handleCreatePost))
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.staticDir))))
	mux.Handle("/media/", http.StripPrefix("/media/", http.FileServer(http.Dir(s.mediaDir))))
	return mux
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.routes().ServeHTTP(w, r)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	t, ok := s.tmpl[name]
	if !ok {
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}
	if err := t.ExecuteTemplate(w, "layout", data); err != nil {
		http.Error(w, "render error", http.StatusInternalServerError)
	}
}

// serveError maps the error taxonomy onto responses: unknown entities 404,
// forbidden edits bounce to the index, missing identity bounces to login.
// Validation errors are normally re-rendered into the form by the handler;
// one reaching here degrades to a 400.
func (s *Server) serveError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *models.ValidationError
	switch {
	case errors.Is(err, models.ErrNotFound):
		http.NotFound(w, r)
	case errors.Is(err, models.ErrForbidden):
		http.Redirect(w, r, "/", http.StatusSeeOther)
	case errors.Is(err, models.ErrUnauthenticated):
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	case errors.As(err, &ve):
		http.Error(w, ve.Error(), http.StatusBadRequest)
	default:
		log.Printf("internal error: %v", err)
		http.Error(w, "server error", http.StatusInternalServerError)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := feed.Compose(s.DB, feed.All(), pageParam(r))
	if err != nil {
		s.serveError(w, r, err)
		return
	}
	s.render(w, "index", map[string]any{
		"Page": page,
		"User": s.currentUser(r),
	})
}

func (s *Server) handleGroup(w http.ResponseWriter, r *http.Request) {
	page, err := feed.Compose(s.DB, feed.InGroup(r.PathValue("slug")), pageParam(r))
	if err != nil {
		s.serveError(w, r, err)
		return
	}
	s.render(w, "group", map[string]any{
		"Page":  page,
		"Group": page.Group,
		"User":  s.currentUser(r),
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	page, err := feed.Compose(s.DB, feed.ByAuthor(r.PathValue("username")), pageParam(r))
	if err != nil {
		s.serveError(w, r, err)
		return
	}
	user := s.currentUser(r)
	following := false
	if user != nil && user.ID != page.Author.ID {
		following, err = follow.IsFollowing(s.DB, user.ID, page.Author.ID)
		if err != nil {
			s.serveError(w, r, err)
			return
		}
	}
	s.render(w, "profile", map[string]any{
		"Page":      page,
		"Author":    page.Author,
		"Following": following,
		"User":      user,
	})
}

func (s *Server) handleFollowIndex(w http.ResponseWriter, r *http.Request, user *models.User) {
	page, err := feed.Compose(s.DB, feed.Following(user.ID), pageParam(r))
	if err != nil {
		s.serveError(w, r, err)
		return
	}
	s.render(w, "follow", map[string]any{
		"Page": page,
		"User": user,
	})
}

func (s *Server) handlePostDetail(w http.ResponseWriter, r *http.Request) {
	id := atoi(r.PathValue("id"))
	if id == 0 {
		http.NotFound(w, r)
		return
	}
	detail, err := posts.GetDetail(s.DB, id)
	if err != nil {
		s.serveError(w, r, err)
		return
	}
	s.render(w, "post", map[string]any{
		"Detail": detail,
		"User":   s.currentUser(r),
	})
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request, user *models.User) {
	switch r.Method {
	case http.MethodGet:
		s.renderPostForm(w, r, user, nil, "", nil)
	case http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		imageRef, err := s.saveImage(r)
		if err != nil {
			s.serveError(w, r, err)
			return
		}
		text := r.FormValue("text")
		_, err = posts.Create(s.DB, user.ID, text, groupParam(r), imageRef)
		var ve *models.ValidationError
		if errors.As(err, &ve) {
			s.renderPostForm(w, r, user, nil, text, ve)
			return
		}
		if err != nil {
			s.serveError(w, r, err)
			return
		}
		http.Redirect(w, r, "/profile/"+user.Username, http.StatusSeeOther)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleEditPost(w http.ResponseWriter, r *http.Request, user *models.User) {
	id := atoi(r.PathValue("id"))
	if id == 0 {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		post, err := models.GetPost(s.DB, id)
		if err != nil {
			s.serveError(w, r, err)
			return
		}
		if post.AuthorID != user.ID {
			s.serveError(w, r, models.ErrForbidden)
			return
		}
		s.renderPostForm(w, r, user, post, post.Text, nil)
	case http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		imageRef, err := s.saveImage(r)
		if err != nil {
			s.serveError(w, r, err)
			return
		}
		text := r.FormValue("text")
		post, err := posts.Edit(s.DB, user.ID, id, text, groupParam(r), imageRef)
		var ve *models.ValidationError
		if errors.As(err, &ve) {
			prev, getErr := models.GetPost(s.DB, id)
			if getErr != nil {
				s.serveError(w, r, getErr)
				return
			}
			s.renderPostForm(w, r, user, prev, text, ve)
			return
		}
		if err != nil {
			s.serveError(w, r, err)
			return
		}
		http.Redirect(w, r, "/posts/"+itoa(post.ID), http.StatusSeeOther)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) renderPostForm(w http.ResponseWriter, r *http.Request, user *models.User, post *models.Post, text string, ve *models.ValidationError) {
	groups, err := models.ListGroups(s.DB)
	if err != nil {
		s.serveError(w, r, err)
		return
	}
	s.render(w, "create_post", map[string]any{
		"User":   user,
		"Post":   post,
		"Text":   text,
		"Groups": groups,
		"IsEdit": post != nil,
		"Error":  ve,
	})
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request, user *models.User) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := atoi(r.PathValue("id"))
	if id == 0 {
		http.NotFound(w, r)
		return
	}
	if err := posts.Delete(s.DB, user.ID, id); err != nil {
		s.serveError(w, r, err)
		return
	}
	http.Redirect(w, r, "/profile/"+user.Username, http.StatusSeeOther)
}

func (s *Server) handleComment(w http.ResponseWriter, r *http.Request, user *models.User) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := atoi(r.PathValue("id"))
	if id == 0 {
		http.NotFound(w, r)
		return
	}
	err := posts.AddComment(s.DB, id, user.ID, r.FormValue("text"))
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		detail, getErr := posts.GetDetail(s.DB, id)
		if getErr != nil {
			s.serveError(w, r, getErr)
			return
		}
		s.render(w, "post", map[string]any{
			"Detail":       detail,
			"User":         user,
			"CommentError": ve,
		})
		return
	}
	if err != nil {
		s.serveError(w, r, err)
		return
	}
	http.Redirect(w, r, "/posts/"+itoa(id), http.StatusSeeOther)
}

func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request, user *models.User) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	username := r.PathValue("username")
	err := follow.Follow(s.DB, user.ID, username)
	var ve *models.ValidationError
	if err != nil && !errors.As(err, &ve) {
		s.serveError(w, r, err)
		return
	}
	// a self-follow attempt just bounces back to the profile
	http.Redirect(w, r, "/profile/"+username, http.StatusSeeOther)
}

func (s *Server) handleUnfollow(w http.ResponseWriter, r *http.Request, user *models.User) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	username := r.PathValue("username")
	if err := follow.Unfollow(s.DB, user.ID, username); err != nil {
		s.serveError(w, r, err)
		return
	}
	http.Redirect(w, r, "/profile/"+username, http.StatusSeeOther)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.render(w, "register", map[string]any{"User": s.currentUser(r)})
	case http.MethodPost:
		username := r.FormValue("username")
		password := r.FormValue("password")
		if username == "" || password == "" {
			s.render(w, "register", map[string]any{"Error": "username and password are required"})
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			s.serveError(w, r, err)
			return
		}
		if _, err := models.CreateUser(s.DB, username, string(hash)); err != nil {
			if errors.Is(err, models.ErrDuplicateUsername) {
				s.render(w, "register", map[string]any{"Error": "username already taken"})
				return
			}
			s.serveError(w, r, err)
			return
		}
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.render(w, "login", map[string]any{"User": s.currentUser(r)})
	case http.MethodPost:
		username := r.FormValue("username")
		password := r.FormValue("password")
		user, err := models.GetUserByUsername(s.DB, username)
		if err != nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
			s.render(w, "login", map[string]any{"Error": "invalid username or password"})
			return
		}
		sid := uuid.NewString()
		expires := time.Now().Add(24 * time.Hour)
		if err := models.CreateSession(s.DB, user.ID, sid, expires); err != nil {
			s.serveError(w, r, err)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: s.CookieName, Value: sid, Path: "/", Expires: expires, HttpOnly: true})
		http.Redirect(w, r, "/", http.StatusSeeOther)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if cookie, err := r.Cookie(s.CookieName); err == nil {
		models.RevokeSession(s.DB, cookie.Value)
		http.SetCookie(w, &http.Cookie{Name: s.CookieName, Path: "/", MaxAge: -1})
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// saveImage stores an uploaded image under the media dir and returns the
// opaque file name kept on the post. Non-multipart requests and forms
// without an image yield an empty ref.
func (s *Server) saveImage(r *http.Request) (string, error) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return "", nil
	}
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer file.Close()
	if err := os.MkdirAll(s.mediaDir, 0755); err != nil {
		return "", err
	}
	name := uuid.NewString() + filepath.Ext(header.Filename)
	dst, err := os.Create(filepath.Join(s.mediaDir, name))
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		return "", err
	}
	return name, nil
}

// middleware
func (s *Server) requireAuth(next func(http.ResponseWriter, *http.Request, *models.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := s.currentUser(r)
		if user == nil {
			s.serveError(w, r, models.ErrUnauthenticated)
			return
		}
		next(w, r, user)
	}
}

func (s *Server) currentUser(r *http.Request) *models.User {
	cookie, err := r.Cookie(s.CookieName)
	if err != nil {
		return nil
	}
	sess, err := models.GetSession(s.DB, cookie.Value)
	if err != nil || sess.RevokedAt != nil || sess.ExpiresAt.Before(time.Now()) {
		return nil
	}
	user, err := models.GetUserByID(s.DB, sess.UserID)
	if err != nil {
		return nil
	}
	return user
}

// helpers
func pageParam(r *http.Request) int {
	return atoi(r.URL.Query().Get("page"))
}

func groupParam(r *http.Request) *int {
	v := r.FormValue("group")
	if v == "" {
		return nil
	}
	id := atoi(v)
	return &id
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
