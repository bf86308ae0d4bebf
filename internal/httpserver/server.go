// Package httpserver exposes the five fixed GET routes of the LL-HLS
// origin over plain net/http, adapted from the teacher's pre-gin
// internal/hlsserver.Server.ServeHTTP CORS/dispatch shape.
package httpserver

import (
	"net"
	"net/http"
	"strconv"

	"github.com/llhls/origin/internal/logger"
	"github.com/llhls/origin/internal/masterplaylist"
	"github.com/llhls/origin/internal/playlist"
)

// Source supplies the playlist(s) behind the HTTP surface. One Source per
// advertised video PID/rendition.
type Source struct {
	Name     string
	Playlist *playlist.Playlist
}

// Server is the HTTP front end for the origin.
type Server struct {
	allowOrigin string
	log         logger.Writer

	sources    map[string]*Source
	renditions []masterplaylist.Rendition
	audio      []masterplaylist.AudioRendition

	inner *http.Server
}

// New allocates a Server listening on address. sources must contain at
// least one entry. The single-rendition routes (/playlist.m3u8, /segment,
// /part, /init) serve one of the sources; sources are held in a map keyed
// by name, so with more than one source which of them these routes serve
// is not defined.
func New(address string, allowOrigin string, log logger.Writer, sources []*Source,
	renditions []masterplaylist.Rendition, audio []masterplaylist.AudioRendition,
) *Server {
	s := &Server{
		allowOrigin: allowOrigin,
		log:         log,
		sources:     make(map[string]*Source),
		renditions:  renditions,
		audio:       audio,
	}
	for _, src := range sources {
		s.sources[src.Name] = src
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/playlist.m3u8", s.onPlaylist)
	mux.HandleFunc("/segment", s.onSegment)
	mux.HandleFunc("/part", s.onPart)
	mux.HandleFunc("/init", s.onInit)
	mux.HandleFunc("/master.m3u8", s.onMaster)

	s.inner = &http.Server{Addr: address, Handler: s.withCORS(mux)}

	return s
}

// Start begins serving in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.inner.Addr)
	if err != nil {
		return err
	}
	s.log.Log(logger.Info, "listener opened on %s", s.inner.Addr)
	go s.inner.Serve(ln)
	return nil
}

// Close shuts down the listener.
func (s *Server) Close() {
	s.inner.Close()
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")

		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", r.Header.Get("Access-Control-Request-Headers"))
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) primary() (*Source, bool) {
	for _, src := range s.sources {
		return src, true
	}
	return nil, false
}

func (s *Server) writeResponse(w http.ResponseWriter, res *playlist.FileResponse) {
	if res == nil || res.Body == nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	for k, v := range res.Header {
		w.Header().Set(k, v)
	}
	w.WriteHeader(res.Status)
	if res.Status != http.StatusOK {
		return
	}
	buf := make([]byte, 4096)
	for {
		n, err := res.Body.Read(buf)
		if n > 0 {
			w.Write(buf[:n])
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) onPlaylist(w http.ResponseWriter, r *http.Request) {
	src, ok := s.primary()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	q := r.URL.Query()
	res := src.Playlist.ServePlaylist(q.Get("_HLS_msn"), q.Get("_HLS_part"), q.Get("_HLS_skip"))
	s.writeResponse(w, res)
}

func (s *Server) onInit(w http.ResponseWriter, r *http.Request) {
	src, ok := s.primary()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.writeResponse(w, src.Playlist.ServeInit())
}

func (s *Server) onSegment(w http.ResponseWriter, r *http.Request) {
	src, ok := s.primary()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	q := r.URL.Query()
	msn, err := strconv.ParseUint(q.Get("msn"), 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.writeResponse(w, src.Playlist.ServeSegment(msn, q.Get("format")))
}

func (s *Server) onPart(w http.ResponseWriter, r *http.Request) {
	src, ok := s.primary()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	q := r.URL.Query()
	msn, err := strconv.ParseUint(q.Get("msn"), 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	part, err := strconv.ParseUint(q.Get("part"), 10, 32)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.writeResponse(w, src.Playlist.ServePart(msn, uint32(part)))
}

func (s *Server) onMaster(w http.ResponseWriter, r *http.Request) {
	body := masterplaylist.Build(s.renditions, s.audio)
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
