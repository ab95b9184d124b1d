package provider

// RuntimeJS is the client runtime served at /vellum.js. Page scripts call
// window.vellum.context() to read the render context attached to their own
// script tag: the inline data island is parsed when present, otherwise the
// payload is fetched from the server by identifier. A 410 response marks a
// payload that existed but was disposed, which callers can distinguish from
// a plain unknown identifier.
const RuntimeJS = `(function () {
  "use strict";

  var cache = Object.create(null);

  function islandFor(id) {
    return document.querySelector(
      'script[type="application/json"][data-vellum-context="' + id + '"]'
    );
  }

  function idFrom(ref) {
    if (typeof ref === "string") {
      return ref;
    }
    var el = ref || document.currentScript;
    if (el && el.getAttribute) {
      return el.getAttribute("data-vellum-context");
    }
    return null;
  }

  // context(ref) resolves the render context for a script element or a raw
  // payload identifier and returns a promise for the decoded object. With no
  // argument it uses document.currentScript, so classic (non-module, non-
  // async handler) scripts can call vellum.context() at top level.
  function context(ref) {
    var id = idFrom(ref);
    if (!id) {
      return Promise.reject(new Error("vellum: no context id"));
    }
    if (cache[id]) {
      return cache[id];
    }

    var island = islandFor(id);
    if (island) {
      try {
        cache[id] = Promise.resolve(JSON.parse(island.textContent));
        return cache[id];
      } catch (e) {
        // fall through to the fetch path
      }
    }

    cache[id] = fetch("/context/" + encodeURIComponent(id), {
      headers: { Accept: "application/json" }
    }).then(function (res) {
      if (res.status === 410) {
        throw new Error("vellum: context " + id + " expired");
      }
      if (!res.ok) {
        throw new Error("vellum: context " + id + " unavailable (" + res.status + ")");
      }
      return res.json();
    });
    cache[id].catch(function () {
      delete cache[id];
    });
    return cache[id];
  }

  window.vellum = window.vellum || {};
  window.vellum.context = context;
})();
`
