package httpapi

import (
	"errors"
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"

	"github.com/mmynk/meetapp/internal/apperr"
	"github.com/mmynk/meetapp/internal/middleware"
	"github.com/mmynk/meetapp/internal/service"
)

func (a *api) createUser(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := a.Users.Register(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (a *api) updateUser(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateUserInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := a.Users.Update(r.Context(), middleware.GetUserID(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (a *api) createSession(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	session, err := a.Sessions.Login(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{User: newUserResponse(session.User), Token: session.Token})
}

func (a *api) uploadFile(w http.ResponseWriter, r *http.Request) {
	if a.MaxUploadBytes > 0 {
		// Leave room for the multipart envelope; FileService enforces the
		// exact limit on the file itself.
		r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes+1<<20)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, apperr.Validation(map[string]string{"file": "is too large"}))
			return
		}
		writeError(w, r, apperr.Validation(map[string]string{"file": "is required"}))
		return
	}
	defer file.Close()

	stored, err := a.Files.Store(r.Context(), filepath.Base(header.Filename), file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.fileResponse(stored))
}

func (a *api) serveFile(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["path"]
	if name != filepath.Base(name) || name == "." || name == ".." {
		writeError(w, r, apperr.NotFound(apperr.MsgFileNotFound))
		return
	}
	http.ServeFile(w, r, filepath.Join(a.Files.Dir(), name))
}

func (a *api) listMeetups(w http.ResponseWriter, r *http.Request) {
	meetups, err := a.Meetups.List(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]*meetupResponse, 0, len(meetups))
	for _, m := range meetups {
		resp = append(resp, a.meetupResponse(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) createMeetup(w http.ResponseWriter, r *http.Request) {
	var req meetupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.createInput()
	if err != nil {
		writeError(w, r, err)
		return
	}

	m, err := a.Meetups.Create(r.Context(), middleware.GetUserID(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, createdMeetupResponse{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		Location:    m.Location,
		Date:        m.Date,
		UserID:      m.OrganizerID,
	})
}

func (a *api) updateMeetup(w http.ResponseWriter, r *http.Request) {
	var req meetupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.updateInput()
	if err != nil {
		writeError(w, r, err)
		return
	}

	m, err := a.Meetups.Update(r.Context(), mux.Vars(r)["id"], middleware.GetUserID(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.meetupResponse(m))
}

func (a *api) deleteMeetup(w http.ResponseWriter, r *http.Request) {
	err := a.Meetups.Delete(r.Context(), mux.Vars(r)["id"], middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Meetup canceled"})
}

func (a *api) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := a.Subscriptions.ListUpcoming(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]subscriptionResponse, 0, len(subs))
	for _, s := range subs {
		resp = append(resp, subscriptionResponse{
			ID:       s.ID,
			MeetupID: s.MeetupID,
			UserID:   s.UserID,
			Meetup:   a.meetupResponse(s.Meetup),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) subscribe(w http.ResponseWriter, r *http.Request) {
	sub, err := a.Subscriptions.Subscribe(r.Context(), mux.Vars(r)["meetup_id"], middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionResponse{ID: sub.ID, MeetupID: sub.MeetupID, UserID: sub.UserID})
}
